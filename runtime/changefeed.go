package runtime

import (
	"duo-lab/contract"
	"duo-lab/domain"
	"fmt"
	"log/slog"
	"sync"
)

// ChangeFeedSubscriber keeps one subscription per watched table.
// Events are not trusted for their payload: every insert, update or delete
// only tells the view that it must reload its collections.
type ChangeFeedSubscriber struct {
	log  *slog.Logger
	feed contract.ChangeFeed
}

func NewChangeFeedSubscriber(log *slog.Logger, feed contract.ChangeFeed) *ChangeFeedSubscriber {
	return &ChangeFeedSubscriber{log: log, feed: feed}
}

// Subscribe calls onChange once per change event of any of the tables.
// onChange must be idempotent, bursts are not coalesced.
// If one table cannot be watched, the subscriptions already taken are released.
func (s *ChangeFeedSubscriber) Subscribe(tables []domain.Table, onChange func()) (contract.Unsubscribe, error) {
	return s.SubscribeEvents(tables, func(evt domain.ChangeEvent) {
		s.log.Debug("Change received", "table", evt.Table, "type", evt.Type)
		onChange()
	})
}

// SubscribeEvents is Subscribe for consumers which need the event itself.
func (s *ChangeFeedSubscriber) SubscribeEvents(tables []domain.Table, onEvent func(domain.ChangeEvent)) (contract.Unsubscribe, error) {
	unsubs := make([]contract.Unsubscribe, 0, len(tables))
	release := func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
	for _, table := range tables {
		unsub, err := s.feed.SubscribeChanges(table, domain.EventAll, onEvent)
		if err != nil {
			release()
			return nil, fmt.Errorf("subscribe to %s changes: %w", table, err)
		}
		unsubs = append(unsubs, unsub)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
