package domain

// Messages are immutable once persisted: they are created and deleted, never edited.

import (
	"cmp"
	"fmt"
	"time"
)

// ChatMessage represents a persisted direct message.
type ChatMessage struct {
	ID        string // unique identifier, assigned by the store
	SenderID  Alias
	Content   string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// OutgoingMessage is what the sender writes; id and timestamp come back from the store.
type OutgoingMessage struct {
	SenderID Alias  `validate:"required,oneof=angy bozy"`
	Content  string `validate:"required,max=4000"`
}

func (m OutgoingMessage) Row() Row {
	return Row{
		"sender_id": string(m.SenderID),
		"content":   m.Content,
	}
}

func ChatMessageFromRow(row Row) (ChatMessage, error) {
	if row.String("id") == "" {
		return ChatMessage{}, fmt.Errorf("message without id")
	}
	createdAt, err := row.Time("created_at")
	if err != nil {
		return ChatMessage{}, fmt.Errorf("message %s: %w", row.String("id"), err)
	}
	readAt, err := row.OptionalTime("read_at")
	if err != nil {
		return ChatMessage{}, fmt.Errorf("message %s: %w", row.String("id"), err)
	}
	return ChatMessage{
		ID:        row.String("id"),
		SenderID:  Alias(row.String("sender_id")),
		Content:   row.String("content"),
		CreatedAt: createdAt,
		ReadAt:    readAt,
	}, nil
}

// CompareMessages orders by creation time, ties broken by identifier.
func CompareMessages(a, b ChatMessage) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
