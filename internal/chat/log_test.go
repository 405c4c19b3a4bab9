package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-roomrelay/internal/db"
	"go-roomrelay/internal/failure"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	database, err := db.NewDatabase(db.DriverSQLite, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(database)
}

type failingStore struct{ err error }

func (f failingStore) Insert(context.Context, Message) error { return f.err }
func (f failingStore) Recent(context.Context, string, int) ([]Message, error) {
	return nil, f.err
}

func TestLog_Append_AssignsIdentityAndTimestamp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := NewLog(newTestRepository(t), 0)

	stored, err := log.Append(ctx, Message{Content: "  hi  ", Sender: "alice", RoomID: "general"})
	req.NoError(err)
	req.NotEqual(uuid.Nil, stored.ID)
	req.False(stored.Timestamp.IsZero())
	req.Equal("hi", stored.Content)

	history, err := log.Recent(ctx, "general")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(stored.ID, history[0].ID)
	req.Equal("alice", history[0].Sender)
	req.True(stored.Timestamp.Equal(history[0].Timestamp))
}

func TestLog_Append_RejectsBlankContent(t *testing.T) {
	req := require.New(t)
	log := NewLog(newTestRepository(t), 0)

	_, err := log.Append(context.Background(), Message{Content: "   ", Sender: "alice", RoomID: "general"})
	req.ErrorIs(err, ErrEmptyContent)
	req.True(failure.IsKind(err, failure.Validation))

	_, err = log.Append(context.Background(), Message{Content: "hello", RoomID: "general"})
	req.ErrorIs(err, ErrEmptySender)
}

func TestLog_Append_PersistenceFailure(t *testing.T) {
	req := require.New(t)
	cause := errors.New("disk full")
	log := NewLog(failingStore{err: cause}, 0)

	_, err := log.Append(context.Background(), Message{Content: "hi", Sender: "alice", RoomID: "general"})
	req.ErrorIs(err, cause)
	req.True(failure.IsKind(err, failure.Persistence))
}

func TestLog_Recent_WindowIsNewestOldestFirst(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := NewLog(newTestRepository(t), 0)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		_, err := log.Append(ctx, Message{
			Content:   fmt.Sprintf("msg %d", i),
			Sender:    "alice",
			RoomID:    "general",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		req.NoError(err)
	}

	history, err := log.Recent(ctx, "general")
	req.NoError(err)
	req.Len(history, DefaultHistoryLimit)
	req.Equal("msg 10", history[0].Content)
	req.Equal("msg 59", history[len(history)-1].Content)
	for i := 1; i < len(history); i++ {
		req.True(history[i-1].Timestamp.Before(history[i].Timestamp))
	}
}

func TestLog_Recent_ScopedToRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := NewLog(newTestRepository(t), 0)

	_, err := log.Append(ctx, Message{Content: "in general", Sender: "alice", RoomID: "general"})
	req.NoError(err)
	_, err = log.Append(ctx, Message{Content: "in random", Sender: "bob", RoomID: "random"})
	req.NoError(err)

	history, err := log.Recent(ctx, "random")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("in random", history[0].Content)

	empty, err := log.Recent(ctx, "nobody-here")
	req.NoError(err)
	req.Empty(empty)
}

func TestLog_Recent_SameTimestampKeepsInsertionOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := NewLog(newTestRepository(t), 0)

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, content := range []string{"first", "second", "third"} {
		_, err := log.Append(ctx, Message{Content: content, Sender: "alice", RoomID: "general", Timestamp: at})
		req.NoError(err)
	}

	history, err := log.Recent(ctx, "general")
	req.NoError(err)
	req.Equal([]string{"first", "second", "third"},
		[]string{history[0].Content, history[1].Content, history[2].Content})
}

func TestLog_Append_LongSenderAndRoomAreStored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := NewLog(newTestRepository(t), 0)

	sender := strings.Repeat("s", 500)
	room := strings.Repeat("r", 300)
	_, err := log.Append(ctx, Message{Content: "hi", Sender: sender, RoomID: room})
	req.NoError(err)

	history, err := log.Recent(ctx, room)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(sender, history[0].Sender)
}
