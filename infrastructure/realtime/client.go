package realtime

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
)

const (
	DefaultHeartbeat    = 25 * time.Second
	DefaultDialAttempts = 5
)

// Client is a realtime websocket client implementing contract.ChangeFeed and
// handing out presence channels. Subscriptions outlive connections: every
// registered topic is joined again after a reconnect.
//
// Run holds one connection and returns when it drops, so it is meant to run
// under a supervisor that restarts it.
type Client struct {
	log          *slog.Logger
	url          string
	dialer       *websocket.Dialer
	heartbeat    time.Duration
	dialAttempts uint
	ref          atomic.Uint64

	mu       sync.Mutex
	conn     *wsConn
	channels map[string]*clientChannel
}

type clientChannel struct {
	topic    string
	join     JoinPayload
	mask     domain.EventMask
	onChange func(domain.ChangeEvent)
	presence *PresenceChannel
}

func NewClient(log *slog.Logger, rawURL, apiKey string, heartbeat time.Duration) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	if apiKey != "" {
		q.Set("apikey", apiKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Client{
		log:          log,
		url:          u.String(),
		dialer:       websocket.DefaultDialer,
		heartbeat:    heartbeat,
		dialAttempts: DefaultDialAttempts,
		channels:     make(map[string]*clientChannel),
	}, nil
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

// push sends a frame on the current connection.
func (c *Client) push(topic, event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", errors.ErrChannelClosed)
	}
	f, err := newFrame(topic, event, c.nextRef(), payload)
	if err != nil {
		return err
	}
	return conn.enqueue(f)
}

func (c *Client) register(ch *clientChannel) {
	c.mu.Lock()
	c.channels[ch.topic] = ch
	connected := c.conn != nil
	c.mu.Unlock()
	if connected {
		if err := c.push(ch.topic, EventJoin, ch.join); err != nil {
			c.log.Warn("Join deferred to next connection", "topic", ch.topic, "error", err)
		}
	}
}

func (c *Client) unregister(topic string) {
	c.mu.Lock()
	_, ok := c.channels[topic]
	delete(c.channels, topic)
	c.mu.Unlock()
	if ok {
		_ = c.push(topic, EventLeave, struct{}{})
	}
}

// SubscribeChanges joins a dedicated topic for the table so that several
// subscribers of the same table never share a join.
func (c *Client) SubscribeChanges(table domain.Table, mask domain.EventMask, onEvent func(domain.ChangeEvent)) (contract.Unsubscribe, error) {
	if table == "" {
		return nil, fmt.Errorf("subscribe: empty table")
	}
	ch := &clientChannel{
		topic: fmt.Sprintf("realtime:%s:%s:%s", publicSchema, table, uuid.NewString()),
		join: JoinPayload{Config: JoinConfig{PostgresChanges: []ChangeFilter{
			{Event: mask.Param(), Schema: publicSchema, Table: string(table)},
		}}},
		mask:     mask,
		onChange: onEvent,
	}
	c.register(ch)

	var once sync.Once
	return func() { once.Do(func() { c.unregister(ch.topic) }) }, nil
}

// Presence joins the presence room and tracks announcements under key.
func (c *Client) Presence(room string, key domain.Alias) *PresenceChannel {
	p := &PresenceChannel{
		client:    c,
		topic:     "realtime:" + room,
		callbacks: make(map[string]func(map[domain.Alias]domain.TypingState)),
	}
	c.register(&clientChannel{
		topic:    p.topic,
		join:     JoinPayload{Config: JoinConfig{Presence: &PresenceConfig{Key: string(key)}}},
		presence: p,
	})
	return p
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	return retry.DoWithData(
		func() (*websocket.Conn, error) {
			ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
			return ws, err
		},
		retry.Context(ctx),
		retry.Attempts(c.dialAttempts),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Realtime dial failed, retrying", "attempt", n+1, "error", err)
		}),
	)
}

// Run connects, joins every registered topic and dispatches frames until the
// connection drops or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	ws, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dial realtime: %w", err)
	}
	conn := newWSConn(ws, c.log, DefaultSendBuffer)
	c.attach(conn)
	c.log.Info("Realtime connected")

	var wg conc.WaitGroup
	wg.Go(conn.writePump)
	wg.Go(func() { c.heartbeatLoop(conn) })
	wg.Go(func() {
		select {
		case <-ctx.Done():
			conn.close()
		case <-conn.done:
		}
	})

	err = c.readLoop(conn)
	c.detach(conn)
	conn.close()
	wg.Wait()

	if ctx.Err() != nil {
		c.log.Debug("Context done, realtime disconnected")
		return nil
	}
	return fmt.Errorf("realtime connection lost: %w", err)
}

func (c *Client) attach(conn *wsConn) {
	c.mu.Lock()
	c.conn = conn
	channels := make([]*clientChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		if err := c.push(ch.topic, EventJoin, ch.join); err != nil {
			c.log.Warn("Failed to join topic", "topic", ch.topic, "error", err)
		}
	}
}

func (c *Client) detach(conn *wsConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Client) heartbeatLoop(conn *wsConn) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			f, _ := newFrame(heartbeatTopic, EventHeartbeat, c.nextRef(), struct{}{})
			if err := conn.enqueue(f); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *wsConn) error {
	for {
		f, err := conn.read()
		if err != nil {
			return err
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f Frame) {
	c.mu.Lock()
	ch, ok := c.channels[f.Topic]
	c.mu.Unlock()
	if !ok {
		return
	}

	switch f.Event {
	case EventChanges:
		var payload ChangePayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			c.log.Warn("Malformed change event", "topic", f.Topic, "error", err)
			return
		}
		if ch.onChange != nil && ch.mask.Matches(payload.Data.Type) {
			ch.onChange(payload.Data.event())
		}
	case EventSync:
		var view map[domain.Alias]domain.TypingState
		if err := json.Unmarshal(f.Payload, &view); err != nil {
			c.log.Warn("Malformed presence sync", "topic", f.Topic, "error", err)
			return
		}
		if ch.presence != nil {
			ch.presence.sync(view)
		}
	case EventReply:
		var r Reply
		if err := json.Unmarshal(f.Payload, &r); err == nil && r.Status != StatusOK {
			c.log.Warn("Realtime request refused", "topic", f.Topic, "ref", f.Ref, "response", r.Response)
		}
	case EventError:
		c.log.Warn("Realtime channel error", "topic", f.Topic)
	}
}

// PresenceChannel implements contract.PresenceChannel over a Client.
type PresenceChannel struct {
	client *Client
	topic  string

	mu        sync.Mutex
	view      map[domain.Alias]domain.TypingState
	callbacks map[string]func(map[domain.Alias]domain.TypingState)
	closed    bool
}

// Announce fails while the client is disconnected. Callers treat that as best effort.
func (p *PresenceChannel) Announce(_ context.Context, state domain.TypingState) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.ErrChannelClosed
	}
	return p.client.push(p.topic, EventTrack, state)
}

// OnSync registers cb. A view received earlier is handed over at once.
func (p *PresenceChannel) OnSync(cb func(map[domain.Alias]domain.TypingState)) contract.Unsubscribe {
	id := uuid.NewString()
	p.mu.Lock()
	p.callbacks[id] = cb
	view := p.view
	p.mu.Unlock()
	if view != nil {
		cb(cloneView(view))
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.callbacks, id)
	}
}

func (p *PresenceChannel) sync(view map[domain.Alias]domain.TypingState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.view = view
	callbacks := make([]func(map[domain.Alias]domain.TypingState), 0, len(p.callbacks))
	for _, cb := range p.callbacks {
		callbacks = append(callbacks, cb)
	}
	p.mu.Unlock()
	for _, cb := range callbacks {
		cb(cloneView(view))
	}
}

func (p *PresenceChannel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.callbacks = make(map[string]func(map[domain.Alias]domain.TypingState))
	p.mu.Unlock()
	p.client.unregister(p.topic)
	return nil
}
