package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable chat line in a room.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
