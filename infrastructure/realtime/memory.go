package realtime

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"sync"

	"github.com/google/uuid"
)

// MemoryHub is an in-process presence transport. Every channel joined on the
// same room sees the announcements of the others.
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
}

type memoryRoom struct {
	presence *presenceRoom
	channels map[string]*MemoryChannel
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: make(map[string]*memoryRoom)}
}

// Join opens a presence channel on room.
func (h *MemoryHub) Join(room string) *MemoryChannel {
	ch := &MemoryChannel{
		hub:       h,
		room:      room,
		id:        uuid.NewString(),
		callbacks: make(map[string]func(map[domain.Alias]domain.TypingState)),
	}
	h.mu.Lock()
	r, ok := h.rooms[room]
	if !ok {
		r = &memoryRoom{presence: newPresenceRoom(), channels: make(map[string]*MemoryChannel)}
		h.rooms[room] = r
	}
	r.channels[ch.id] = ch
	h.mu.Unlock()
	return ch
}

func (h *MemoryHub) snapshot(room string) map[domain.Alias]domain.TypingState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[room]; ok {
		return r.presence.snapshot()
	}
	return map[domain.Alias]domain.TypingState{}
}

// update applies fn to the room and hands the resulting view to every channel.
func (h *MemoryHub) update(room string, fn func(r *memoryRoom)) {
	h.mu.Lock()
	r, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return
	}
	fn(r)
	view := r.presence.snapshot()
	channels := make([]*MemoryChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	if len(r.channels) == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		ch.deliver(view)
	}
}

// MemoryChannel implements contract.PresenceChannel on a MemoryHub.
type MemoryChannel struct {
	hub  *MemoryHub
	room string
	id   string

	mu        sync.Mutex
	callbacks map[string]func(map[domain.Alias]domain.TypingState)
	closed    bool
}

func (c *MemoryChannel) Announce(_ context.Context, state domain.TypingState) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.ErrChannelClosed
	}
	c.hub.update(c.room, func(r *memoryRoom) { r.presence.track(c.id, state) })
	return nil
}

// OnSync registers cb and immediately hands it the current view.
func (c *MemoryChannel) OnSync(cb func(map[domain.Alias]domain.TypingState)) contract.Unsubscribe {
	id := uuid.NewString()
	c.mu.Lock()
	c.callbacks[id] = cb
	c.mu.Unlock()
	cb(c.hub.snapshot(c.room))

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.callbacks, id)
	}
}

func (c *MemoryChannel) deliver(view map[domain.Alias]domain.TypingState) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	callbacks := make([]func(map[domain.Alias]domain.TypingState), 0, len(c.callbacks))
	for _, cb := range c.callbacks {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb(cloneView(view))
	}
}

// Close leaves the room; the remaining members get a view without this channel.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.callbacks = make(map[string]func(map[domain.Alias]domain.TypingState))
	c.mu.Unlock()

	c.hub.update(c.room, func(r *memoryRoom) {
		r.presence.untrack(c.id)
		delete(r.channels, c.id)
	})
	return nil
}
