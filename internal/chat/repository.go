package chat

import (
	"context"
	"time"

	"go-roomrelay/internal/db"
)

type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

func (r *Repository) Insert(ctx context.Context, msg Message) error {
	query := r.db.Rebind("INSERT INTO messages (id, room_id, sender, content, created_at) VALUES (?, ?, ?, ?, ?)")
	_, err := r.db.Conn.ExecContext(ctx, query,
		msg.ID.String(), msg.RoomID, msg.Sender, msg.Content, msg.Timestamp.UnixNano())
	return err
}

// Recent returns the newest limit messages of a room, oldest first.
func (r *Repository) Recent(ctx context.Context, roomID string, limit int) ([]Message, error) {
	query := r.db.Rebind(`
		SELECT id, room_id, sender, content, created_at FROM (
			SELECT seq, id, room_id, sender, content, created_at
			FROM messages
			WHERE room_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		) AS recent
		ORDER BY created_at ASC, seq ASC
	`)
	rows, err := r.db.Conn.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var (
			msg Message
			id  string
			at  int64
		)
		if err := rows.Scan(&id, &msg.RoomID, &msg.Sender, &msg.Content, &at); err != nil {
			return nil, err
		}
		if err := msg.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, err
		}
		msg.Timestamp = time.Unix(0, at).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
