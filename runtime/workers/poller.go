package workers

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is the period of the message polling fallback.
const DefaultPollInterval = 5 * time.Second

// MessagePoller re-fetches the conversation at a fixed interval, independently of the
// realtime feed, so messages lost by a dropped subscription still show up.
// A failed poll is logged and retried at the next tick.
type MessagePoller struct {
	log      *slog.Logger
	interval time.Duration
	poll     func(ctx context.Context) (int, error)
}

func NewMessagePoller(log *slog.Logger, interval time.Duration, poll func(ctx context.Context) (int, error)) *MessagePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &MessagePoller{log: log, interval: interval, poll: poll}
}

func (p *MessagePoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Context done, stopping message polling")
			return nil
		case <-ticker.C:
			added, err := p.poll(ctx)
			if err != nil {
				p.log.Warn("Message polling failed", "error", err)
				continue
			}
			if added > 0 {
				p.log.Info("Polling found missed messages", "count", added)
			}
		}
	}
}
