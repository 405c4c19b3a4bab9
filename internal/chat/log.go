package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-roomrelay/internal/failure"
)

// DefaultHistoryLimit is the size of the recent-history window.
const DefaultHistoryLimit = 50

var ErrEmptyContent = errors.New("message content is empty")
var ErrEmptySender = errors.New("message sender is empty")

type Store interface {
	Insert(ctx context.Context, msg Message) error
	Recent(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// Log is the append-only message history of every room.
type Log struct {
	store Store
	limit int
	now   func() time.Time
}

func NewLog(store Store, limit int) *Log {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Log{store: store, limit: limit, now: time.Now}
}

// Append stores msg and returns it with its identity and timestamp filled in.
func (l *Log) Append(ctx context.Context, msg Message) (Message, error) {
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return Message{}, failure.New(failure.Validation, "chat.append", ErrEmptyContent)
	}
	if msg.Sender == "" {
		return Message{}, failure.New(failure.Validation, "chat.append", ErrEmptySender)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now().UTC()
	}
	if err := l.store.Insert(ctx, msg); err != nil {
		return Message{}, failure.New(failure.Persistence, "chat.append", err)
	}
	return msg, nil
}

// Recent returns at most the window size of messages for roomID, oldest first.
func (l *Log) Recent(ctx context.Context, roomID string) ([]Message, error) {
	messages, err := l.store.Recent(ctx, roomID, l.limit)
	if err != nil {
		return nil, failure.New(failure.Persistence, "chat.recent", err)
	}
	return messages, nil
}
