package services

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"duo-lab/runtime"
	"duo-lab/runtime/workers"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// Dependencies are the collaborators a session is built on.
type Dependencies struct {
	Remote   contract.RemoteStore
	Feed     contract.ChangeFeed
	Blobs    contract.BlobStore
	Presence contract.PresenceChannel
	Invoker  contract.DeliveryInvoker
	Notifier contract.Notifier
	Alerter  contract.Alerter
	Prefs    contract.Preferences
}

type Options struct {
	PollInterval    time.Duration
	TypingTimeout   time.Duration
	RestartInterval time.Duration
}

// Session is everything a signed-in user works with, created once at sign-in and torn down on logout.
type Session struct {
	Self          domain.Alias
	Data          *runtime.DataStore
	Chat          *runtime.ChatRoom
	Typing        *runtime.TypingTracker
	Profiles      *runtime.ProfileStore
	Notifications *NotificationService
	Theme         *ThemeService

	log        *slog.Logger
	deps       Dependencies
	supervisor *workers.Supervisor
	refresher  *workers.Refresher
	cancel     context.CancelFunc
	unsubs     []contract.Unsubscribe
	done       chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}
}

// Open wires the components of self, takes the change feed subscriptions,
// performs the initial load and starts the background workers.
func Open(ctx context.Context, log *slog.Logger, self domain.Alias, deps Dependencies, opts Options) (*Session, error) {
	if !self.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownAlias, self)
	}
	if err := deps.Prefs.SetLastUser(self); err != nil {
		log.Warn("Cannot remember user", "error", err)
	}

	log = log.With("user", self)
	profiles := runtime.NewProfileStore(log, self, deps.Remote, deps.Blobs, deps.Prefs)
	notifications := NewNotificationService(log, self, deps.Invoker, deps.Notifier, profiles)
	s := &Session{
		Self:          self,
		Data:          runtime.NewDataStore(log, deps.Remote),
		Chat:          runtime.NewChatRoom(log, self, deps.Remote, notifications, deps.Alerter),
		Typing:        runtime.NewTypingTracker(log, self, deps.Presence, opts.TypingTimeout),
		Profiles:      profiles,
		Notifications: notifications,
		Theme:         NewThemeService(log, deps.Prefs, profiles),
		log:           log,
		deps:          deps,
		supervisor:    workers.NewSupervisor(log, opts.RestartInterval),
		done:          make(chan struct{}),
		closed:        make(chan struct{}),
	}
	s.refresher = workers.NewRefresher(log, s.Data.Refresh)

	subscriber := runtime.NewChangeFeedSubscriber(log, deps.Feed)
	subscriptions := []func() (contract.Unsubscribe, error){
		func() (contract.Unsubscribe, error) {
			return subscriber.Subscribe(domain.DataTables, s.refresher.Trigger)
		},
		func() (contract.Unsubscribe, error) {
			return subscriber.SubscribeEvents([]domain.Table{domain.TableMessages}, s.Chat.HandleChange)
		},
		func() (contract.Unsubscribe, error) {
			return subscriber.SubscribeEvents([]domain.Table{domain.TableProfiles}, s.Profiles.HandleChange)
		},
	}
	for _, subscribe := range subscriptions {
		unsub, err := subscribe()
		if err != nil {
			s.release()
			s.Typing.Close()
			if cerr := deps.Presence.Close(); cerr != nil {
				log.Warn("Error closing presence channel", "error", cerr)
			}
			return nil, err
		}
		s.unsubs = append(s.unsubs, unsub)
	}

	var wg conc.WaitGroup
	wg.Go(func() { s.Data.Refresh(ctx) })
	wg.Go(func() { s.Chat.Load(ctx) })
	wg.Go(func() { s.Profiles.Refresh(ctx) })
	wg.Wait()

	poller := workers.NewMessagePoller(log, opts.PollInterval, s.Chat.Poll)
	s.supervisor.Add(poller, s.refresher)
	// Workers live as long as the session, not as long as the opening request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.supervisor.Run(runCtx)
	}()

	log.Info("Session opened")
	return s, nil
}

func (s *Session) release() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// Closed is closed once the session has been torn down.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Close releases subscriptions, the presence channel and timers, stops the workers
// and waits for pending push deliveries.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.release()
		s.Typing.Close()
		if err := s.deps.Presence.Close(); err != nil {
			s.log.Warn("Error closing presence channel", "error", err)
		}
		s.cancel()
		<-s.done
		s.Notifications.Wait()
		close(s.closed)
		s.log.Info("Session closed")
	})
}

// Logout tears the session down and forgets the user on this device.
func (s *Session) Logout() {
	s.Close()
	if err := s.deps.Prefs.ClearLastUser(); err != nil {
		s.log.Error("Error clearing user", "error", err)
	}
}

// Type replaces the draft and counts as a keystroke for the typing indicator.
func (s *Session) Type(ctx context.Context, text string) {
	s.Chat.SetDraft(text)
	s.Typing.Keystroke(ctx)
}

// Send stops the typing indicator and sends the draft.
func (s *Session) Send(ctx context.Context) error {
	select {
	case <-s.closed:
		return errors.ErrSessionClosed
	default:
	}
	s.Typing.Sent(ctx)
	return s.Chat.Send(ctx)
}

// RestoreUser returns the alias remembered on this device, if any.
func RestoreUser(prefs contract.Preferences) (domain.Alias, bool) {
	user, ok, err := prefs.LastUser()
	if err != nil || !ok || !user.Valid() {
		return "", false
	}
	return user, true
}
