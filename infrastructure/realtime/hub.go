package realtime

import (
	"duo-lab/contract"
	"duo-lab/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub is the server side of the realtime protocol. It relays the events of a
// change feed to joined websocket clients and keeps typing presence per topic.
type Hub struct {
	log      *slog.Logger
	feed     contract.ChangeFeed
	upgrader websocket.Upgrader
	buffer   int
	conns    atomic.Int64

	mu    sync.Mutex
	rooms map[string]*hubRoom
}

type hubRoom struct {
	presence *presenceRoom
	members  map[string]*hubConn
}

type hubConn struct {
	*wsConn
	id string

	mu       sync.Mutex
	topics   map[string][]contract.Unsubscribe
	presence map[string]bool
}

func NewHub(log *slog.Logger, feed contract.ChangeFeed, buffer int) *Hub {
	return &Hub{
		log:  log,
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		buffer: buffer,
		rooms:  make(map[string]*hubRoom),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade realtime connection", "error", err)
		return
	}
	c := &hubConn{
		wsConn:   newWSConn(ws, h.log, h.buffer),
		id:       uuid.NewString(),
		topics:   make(map[string][]contract.Unsubscribe),
		presence: make(map[string]bool),
	}
	h.log.Debug("Realtime client connected", "conn", c.id, "remote", r.RemoteAddr)
	h.conns.Add(1)
	go c.writePump()
	defer func() {
		h.conns.Add(-1)
		h.disconnect(c)
	}()

	for {
		f, err := c.read()
		if err != nil {
			h.log.Debug("Realtime client gone", "conn", c.id, "error", err)
			return
		}
		h.handle(c, f)
	}
}

// Connections is the number of open websocket connections.
func (h *Hub) Connections() int {
	return int(h.conns.Load())
}

func (h *Hub) handle(c *hubConn, f Frame) {
	var err error
	switch f.Event {
	case EventHeartbeat:
	case EventJoin:
		err = h.join(c, f)
	case EventTrack:
		err = h.track(c, f)
	case EventLeave:
		h.leave(c, f.Topic)
	default:
		err = fmt.Errorf("unknown event %q", f.Event)
	}
	if err != nil {
		h.log.Debug("Realtime frame rejected", "conn", c.id, "topic", f.Topic, "event", f.Event, "error", err)
		_ = c.enqueue(reply(f.Topic, f.Ref, StatusError, err.Error()))
		return
	}
	_ = c.enqueue(reply(f.Topic, f.Ref, StatusOK, ""))
}

func (h *Hub) join(c *hubConn, f Frame) error {
	var payload JoinPayload
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		return fmt.Errorf("decode join: %w", err)
	}
	// Joining twice replaces the first join.
	h.leave(c, f.Topic)

	var unsubs []contract.Unsubscribe
	for _, filter := range payload.Config.PostgresChanges {
		topic := f.Topic
		unsub, err := h.feed.SubscribeChanges(domain.Table(filter.Table), domain.ParseEventMask(filter.Event), func(evt domain.ChangeEvent) {
			frame, err := newFrame(topic, EventChanges, "", changePayload(evt))
			if err != nil {
				h.log.Error("Failed to encode change", "table", evt.Table, "error", err)
				return
			}
			_ = c.enqueue(frame)
		})
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return fmt.Errorf("subscribe %s: %w", filter.Table, err)
		}
		unsubs = append(unsubs, unsub)
	}
	c.mu.Lock()
	c.topics[f.Topic] = unsubs
	c.mu.Unlock()

	if payload.Config.Presence != nil {
		h.mu.Lock()
		room, ok := h.rooms[f.Topic]
		if !ok {
			room = &hubRoom{presence: newPresenceRoom(), members: make(map[string]*hubConn)}
			h.rooms[f.Topic] = room
		}
		room.members[c.id] = c
		view := room.presence.snapshot()
		h.mu.Unlock()

		c.mu.Lock()
		c.presence[f.Topic] = true
		c.mu.Unlock()
		h.sendSync(c, f.Topic, view)
	}
	return nil
}

func (h *Hub) track(c *hubConn, f Frame) error {
	c.mu.Lock()
	joined := c.presence[f.Topic]
	c.mu.Unlock()
	if !joined {
		return fmt.Errorf("presence not joined on %s", f.Topic)
	}
	var state domain.TypingState
	if err := json.Unmarshal(f.Payload, &state); err != nil {
		return fmt.Errorf("decode presence: %w", err)
	}
	if !state.User.Valid() {
		return fmt.Errorf("presence for unknown user %q", state.User)
	}
	h.broadcast(f.Topic, func(r *hubRoom) { r.presence.track(c.id, state) })
	return nil
}

// broadcast applies fn to the room and sends the resulting view to every member.
func (h *Hub) broadcast(topic string, fn func(r *hubRoom)) {
	h.mu.Lock()
	room, ok := h.rooms[topic]
	if !ok {
		h.mu.Unlock()
		return
	}
	fn(room)
	view := room.presence.snapshot()
	members := make([]*hubConn, 0, len(room.members))
	for _, m := range room.members {
		members = append(members, m)
	}
	if len(room.members) == 0 {
		delete(h.rooms, topic)
	}
	h.mu.Unlock()

	for _, m := range members {
		h.sendSync(m, topic, view)
	}
}

func (h *Hub) sendSync(c *hubConn, topic string, view map[domain.Alias]domain.TypingState) {
	frame, err := newFrame(topic, EventSync, "", view)
	if err != nil {
		h.log.Error("Failed to encode presence", "topic", topic, "error", err)
		return
	}
	_ = c.enqueue(frame)
}

func (h *Hub) leave(c *hubConn, topic string) {
	c.mu.Lock()
	unsubs := c.topics[topic]
	delete(c.topics, topic)
	inRoom := c.presence[topic]
	delete(c.presence, topic)
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if inRoom {
		h.broadcast(topic, func(r *hubRoom) {
			r.presence.untrack(c.id)
			delete(r.members, c.id)
		})
	}
}

func (h *Hub) disconnect(c *hubConn) {
	c.mu.Lock()
	topics := make(map[string]bool, len(c.topics)+len(c.presence))
	for topic := range c.topics {
		topics[topic] = true
	}
	for topic := range c.presence {
		topics[topic] = true
	}
	c.mu.Unlock()

	for topic := range topics {
		h.leave(c, topic)
	}
	c.close()
}
