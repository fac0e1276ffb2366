package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestRefresher_BurstTriggersAtLeastOneReload(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	var reloads atomic.Int32
	release := make(chan struct{})
	r := NewRefresher(log, func(ctx context.Context) {
		reloads.Add(1)
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	// Given a reload in flight
	r.Trigger()
	req.Eventually(func() bool { return reloads.Load() == 1 }, time.Second, 5*time.Millisecond)

	// When a burst of changes arrives meanwhile
	for range 10 {
		r.Trigger()
	}
	close(release)

	// Then the burst collapses into one follow-up reload
	req.Eventually(func() bool { return reloads.Load() == 2 }, time.Second, 5*time.Millisecond)
	req.Never(func() bool { return reloads.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}
