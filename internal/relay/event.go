package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"go-roomrelay/internal/failure"
)

// Inbound events.
const (
	EventSendMessage   = "send_message"
	EventFetchMessages = "fetch_messages"
	EventFetchPolls    = "fetch_polls"
	EventCreatePoll    = "create_poll"
	EventVoteOnPoll    = "vote_on_poll"
)

// Outbound events.
const (
	EventPreviousMessages = "previous_messages"
	EventReceiveMessage   = "receive_message"
	EventPolls            = "polls"
	EventNewPoll          = "new_poll"
	EventPollUpdated      = "poll_updated"
)

// Frame is the envelope of every websocket message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	Content string `json:"content" validate:"required"`
	Sender  string `json:"sender" validate:"required"`
	RoomID  string `json:"roomId"`
}

type CreatePollPayload struct {
	ID       string          `json:"id" validate:"required"`
	Creator  string          `json:"creator" validate:"required"`
	Question string          `json:"question" validate:"required"`
	Options  []OptionPayload `json:"options" validate:"min=2,dive"`
	RoomID   string          `json:"roomId"`
}

// OptionPayload accepts either a bare string or an object with a text field.
// Any votes or voters sent along are ignored.
type OptionPayload struct {
	Text string `json:"text" validate:"required"`
}

func (o *OptionPayload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &o.Text)
	}
	var raw struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	o.Text = raw.Text
	return nil
}

type VotePayload struct {
	PollID      string `json:"pollId" validate:"required"`
	OptionIndex *int   `json:"optionIndex" validate:"required"`
	Voter       string `json:"voter" validate:"required"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

var errMissingOptionIndex = errors.New("optionIndex is required")

func (p *SendMessagePayload) normalize() {
	p.Content = strings.TrimSpace(p.Content)
	p.RoomID = strings.TrimSpace(p.RoomID)
}

func (p *CreatePollPayload) normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Question = strings.TrimSpace(p.Question)
	p.RoomID = strings.TrimSpace(p.RoomID)
	for i := range p.Options {
		p.Options[i].Text = strings.TrimSpace(p.Options[i].Text)
	}
}

func (p *VotePayload) normalize() {
	p.PollID = strings.TrimSpace(p.PollID)
}

type normalizer interface {
	normalize()
}

// decodePayload unmarshals data into T, trims it and checks its validate tags.
func decodePayload[T any](v *validator.Validate, op string, data json.RawMessage) (T, error) {
	var payload T
	if len(bytes.TrimSpace(data)) == 0 {
		return payload, failure.New(failure.Decode, op, errors.New("missing payload"))
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, failure.New(failure.Decode, op, err)
	}
	if n, ok := any(&payload).(normalizer); ok {
		n.normalize()
	}
	if err := v.Struct(payload); err != nil {
		return payload, failure.New(failure.Validation, op, err)
	}
	return payload, nil
}

// decodeRoom reads an optional room id sent as nothing, null, a JSON string
// or an object with a roomId field.
func decodeRoom(op string, data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var room string
		if err := json.Unmarshal(data, &room); err != nil {
			return "", failure.New(failure.Decode, op, err)
		}
		return strings.TrimSpace(room), nil
	}
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", failure.New(failure.Decode, op, err)
	}
	return strings.TrimSpace(p.RoomID), nil
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
