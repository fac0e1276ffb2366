package runtime

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// DefaultTypingTimeout is how long a typing announcement lives without a new keystroke.
const DefaultTypingTimeout = 2 * time.Second

// TypingTracker announces the local typing state and merges what peers announce.
// Announcements are best effort: a failure is logged and the next keystroke,
// timer or send announces the current state again.
type TypingTracker struct {
	log     *slog.Logger
	self    domain.Alias
	channel contract.PresenceChannel
	timeout time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	peers  map[domain.Alias]domain.TypingState
	unsync contract.Unsubscribe
	closed bool
}

func NewTypingTracker(log *slog.Logger, self domain.Alias, channel contract.PresenceChannel, timeout time.Duration) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	t := &TypingTracker{
		log:     log,
		self:    self,
		channel: channel,
		timeout: timeout,
		peers:   make(map[domain.Alias]domain.TypingState),
	}
	t.unsync = channel.OnSync(t.sync)
	return t
}

// sync replaces the merged view with the channel's current membership state.
func (t *TypingTracker) sync(state map[domain.Alias]domain.TypingState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = make(map[domain.Alias]domain.TypingState, len(state))
	for user, s := range state {
		t.peers[user] = s
	}
}

func (t *TypingTracker) announce(ctx context.Context, typing bool) {
	err := t.channel.Announce(ctx, domain.TypingState{User: t.self, IsTyping: typing})
	if err != nil {
		t.log.Debug("Typing announcement dropped", "typing", typing, "error", err)
	}
}

// Keystroke announces that the user is typing and restarts the inactivity timer.
func (t *TypingTracker) Keystroke(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	// The announcement outlives the keystroke's context.
	idleCtx := context.WithoutCancel(ctx)
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(idleCtx, gen) })
	t.mu.Unlock()

	t.announce(ctx, true)
}

// expire ignores timers superseded by a later keystroke or send.
func (t *TypingTracker) expire(ctx context.Context, gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.announce(ctx, false)
}

// Sent cancels any pending timer and announces immediately that typing stopped.
func (t *TypingTracker) Sent(ctx context.Context) {
	t.mu.Lock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	closed := t.closed
	t.mu.Unlock()

	if !closed {
		t.announce(ctx, false)
	}
}

// Typing lists the peers currently typing, the local user excluded.
func (t *TypingTracker) Typing() []domain.Alias {
	t.mu.Lock()
	defer t.mu.Unlock()
	var typing []domain.Alias
	for user, s := range t.peers {
		if user != t.self && s.IsTyping {
			typing = append(typing, user)
		}
	}
	slices.Sort(typing)
	return typing
}

// Close stops the timer and releases the sync subscription. The channel itself is owned by the caller.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.unsync != nil {
		t.unsync()
	}
}
