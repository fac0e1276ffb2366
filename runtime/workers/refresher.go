package workers

import (
	"context"
	"log/slog"
)

// Refresher runs a full reload each time it is triggered.
// Triggers arriving while a reload is in flight collapse into a single
// follow-up reload, which is enough because a reload fetches everything.
type Refresher struct {
	log     *slog.Logger
	refresh func(ctx context.Context)
	trigger chan struct{}
}

func NewRefresher(log *slog.Logger, refresh func(ctx context.Context)) *Refresher {
	return &Refresher{log: log, refresh: refresh, trigger: make(chan struct{}, 1)}
}

// Trigger never blocks.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
		r.log.Debug("Refresh already pending")
	}
}

func (r *Refresher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.trigger:
			r.refresh(ctx)
		}
	}
}
