package runtime

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// SendFailedAlert is raised when a message could not be persisted.
const SendFailedAlert = "Failed to send message. Please try again."

// ChatRoom is the local view of the conversation.
// Messages arrive from three sources (initial load, realtime inserts, polling)
// and are merged into a set keyed by identifier with insert-if-absent semantics,
// so the same message delivered twice is only kept once.
type ChatRoom struct {
	log           *slog.Logger
	self          domain.Alias
	remote        contract.RemoteStore
	notifications contract.Notifications
	alerter       contract.Alerter
	validate      *validator.Validate

	mu       sync.RWMutex
	messages map[string]domain.ChatMessage
	loaded   bool

	draftMu sync.Mutex
	draft   string
}

func NewChatRoom(
	log *slog.Logger,
	self domain.Alias,
	remote contract.RemoteStore,
	notifications contract.Notifications,
	alerter contract.Alerter,
) *ChatRoom {
	return &ChatRoom{
		log:           log,
		self:          self,
		remote:        remote,
		notifications: notifications,
		alerter:       alerter,
		validate:      validator.New(),
		messages:      make(map[string]domain.ChatMessage),
	}
}

func (c *ChatRoom) fetch(ctx context.Context) ([]domain.ChatMessage, error) {
	rows, err := c.remote.Select(ctx, domain.TableMessages, domain.Query{
		Order: &domain.Order{Column: "created_at", Ascending: true},
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := domain.ChatMessageFromRow(row)
		if err != nil {
			c.log.Warn("Skipping unreadable message", "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Load fills the set with the stored conversation without raising notifications.
func (c *ChatRoom) Load(ctx context.Context) {
	msgs, err := c.fetch(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	if err != nil {
		c.log.Error("Error fetching messages", "error", err)
		return
	}
	for _, msg := range msgs {
		if _, ok := c.messages[msg.ID]; !ok {
			c.messages[msg.ID] = msg
		}
	}
}

// Poll re-fetches the conversation and surfaces messages the realtime path missed.
// It returns how many messages were new.
func (c *ChatRoom) Poll(ctx context.Context) (int, error) {
	msgs, err := c.fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll messages: %w", err)
	}
	added := 0
	for _, msg := range msgs {
		if c.Receive(msg) {
			added++
		}
	}
	if added > 0 {
		c.log.Debug("Polling recovered messages", "count", added)
	}
	return added, nil
}

// Receive inserts the message if its identifier is unknown.
// A newly seen message from the partner raises a local notification.
func (c *ChatRoom) Receive(msg domain.ChatMessage) bool {
	c.mu.Lock()
	if _, ok := c.messages[msg.ID]; ok {
		c.mu.Unlock()
		return false
	}
	c.messages[msg.ID] = msg
	c.mu.Unlock()

	if msg.SenderID != c.self {
		c.notifications.ShowInbound(msg)
	}
	return true
}

// HandleChange applies a realtime event of the messages table.
func (c *ChatRoom) HandleChange(evt domain.ChangeEvent) {
	switch evt.Type {
	case domain.ChangeInsert:
		msg, err := domain.ChatMessageFromRow(evt.Record)
		if err != nil {
			c.log.Warn("Ignoring unreadable realtime message", "error", err)
			return
		}
		c.Receive(msg)
	case domain.ChangeDelete:
		c.remove(evt.OldRecord.String("id"))
	}
}

func (c *ChatRoom) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, id)
}

// Messages returns the conversation ordered by creation time.
func (c *ChatRoom) Messages() []domain.ChatMessage {
	c.mu.RLock()
	msgs := slices.Collect(maps.Values(c.messages))
	c.mu.RUnlock()
	slices.SortFunc(msgs, domain.CompareMessages)
	return msgs
}

func (c *ChatRoom) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.loaded
}

func (c *ChatRoom) SetDraft(text string) {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	c.draft = text
}

func (c *ChatRoom) Draft() string {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	return c.draft
}

// takeDraft clears the input and returns what it held.
func (c *ChatRoom) takeDraft() string {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	text := c.draft
	c.draft = ""
	return text
}

// Send persists the draft.
// The input is cleared before the remote insert. On failure the original text is
// put back and the user is alerted. The message itself is not appended here: it comes
// back through the change feed or the polling fallback.
func (c *ChatRoom) Send(ctx context.Context) error {
	original := c.takeDraft()
	content := strings.TrimSpace(original)
	if content == "" {
		c.SetDraft(original)
		return errors.ErrEmptyMessage
	}

	out := domain.OutgoingMessage{SenderID: c.self, Content: content}
	if err := c.validate.Struct(out); err != nil {
		c.log.Error("Invalid message", "error", err)
		c.SetDraft(original)
		return fmt.Errorf("%w: %w", errors.ErrInvalidRow, err)
	}
	if err := c.remote.Insert(ctx, domain.TableMessages, out.Row()); err != nil {
		c.log.Error("Error sending message", "error", err)
		c.SetDraft(original)
		c.alerter.Alert(SendFailedAlert)
		return fmt.Errorf("send message: %w", err)
	}

	c.notifications.SendPush(content, c.self.Partner())
	return nil
}

// Delete removes one of the user's own messages.
// Ownership is checked against the local set, ids not loaded yet are refused.
func (c *ChatRoom) Delete(ctx context.Context, id string) {
	c.mu.RLock()
	msg, ok := c.messages[id]
	c.mu.RUnlock()
	if !ok || msg.SenderID != c.self {
		c.log.Error("Error deleting message", "id", id, "error", errors.ErrNotOwner)
		return
	}
	if err := c.remote.Delete(ctx, domain.TableMessages, id); err != nil {
		c.log.Error("Error deleting message", "id", id, "error", err)
		return
	}
	c.remove(id)
}
