package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"go-roomrelay/internal/chat"
	"go-roomrelay/internal/failure"
	"go-roomrelay/internal/poll"
)

// Broadcaster delivers a frame to every connected client.
type Broadcaster interface {
	Broadcast(ctx context.Context, frame []byte) error
}

// Replier is the connection an event came from.
type Replier interface {
	Reply(frame []byte) bool
}

type MessageLog interface {
	Append(ctx context.Context, msg chat.Message) (chat.Message, error)
	Recent(ctx context.Context, roomID string) ([]chat.Message, error)
}

type PollCoordinator interface {
	Create(ctx context.Context, id, roomID, creator, question string, options []string) (poll.Poll, error)
	List(ctx context.Context, roomID string) ([]poll.Poll, error)
	Vote(ctx context.Context, pollID string, optionIndex int, voter string) (poll.Poll, poll.Outcome, error)
}

// Relay turns inbound room events into persisted state and outbound frames.
// A failed event is logged and dropped; it never reaches other clients.
type Relay struct {
	log         *slog.Logger
	messages    MessageLog
	polls       PollCoordinator
	hub         Broadcaster
	validate    *validator.Validate
	defaultRoom string
	timeout     time.Duration
}

func New(log *slog.Logger, messages MessageLog, polls PollCoordinator, hub Broadcaster, defaultRoom string, timeout time.Duration) *Relay {
	return &Relay{
		log:         log,
		messages:    messages,
		polls:       polls,
		hub:         hub,
		validate:    validator.New(),
		defaultRoom: defaultRoom,
		timeout:     timeout,
	}
}

// Handle decodes one raw frame from a client and runs it to completion.
func (r *Relay) Handle(ctx context.Context, from Replier, raw []byte) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.drop("", failure.New(failure.Decode, "relay.handle", err))
		return
	}

	var err error
	switch frame.Event {
	case EventSendMessage:
		var p SendMessagePayload
		if p, err = decodePayload[SendMessagePayload](r.validate, EventSendMessage, frame.Data); err == nil {
			_, err = r.SubmitMessage(ctx, p)
		}
	case EventFetchMessages:
		var room string
		if room, err = decodeRoom(EventFetchMessages, frame.Data); err == nil {
			err = r.FetchMessages(ctx, from, room)
		}
	case EventFetchPolls:
		var room string
		if room, err = decodeRoom(EventFetchPolls, frame.Data); err == nil {
			err = r.FetchPolls(ctx, from, room)
		}
	case EventCreatePoll:
		var p CreatePollPayload
		if p, err = decodePayload[CreatePollPayload](r.validate, EventCreatePoll, frame.Data); err == nil {
			_, err = r.CreatePoll(ctx, p)
		}
	case EventVoteOnPoll:
		var p VotePayload
		if p, err = decodePayload[VotePayload](r.validate, EventVoteOnPoll, frame.Data); err == nil {
			_, _, err = r.Vote(ctx, p)
		}
	default:
		err = failure.New(failure.Decode, "relay.handle", fmt.Errorf("unknown event %q", frame.Event))
	}

	if err != nil {
		r.drop(frame.Event, err)
	}
}

func (r *Relay) drop(event string, err error) {
	kind := failure.KindOf(err)
	switch kind {
	case failure.Validation, failure.Decode:
		r.log.Warn("Rejected event", "event", event, "kind", kind, "error", err)
	default:
		r.log.Error("Event dropped", "event", event, "kind", kind, "error", err)
	}
}

func (r *Relay) room(roomID string) string {
	if roomID == "" {
		return r.defaultRoom
	}
	return roomID
}

func (r *Relay) broadcast(ctx context.Context, op, event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return failure.New(failure.Broadcast, op, err)
	}
	if err := r.hub.Broadcast(ctx, frame); err != nil {
		return failure.New(failure.Broadcast, op, err)
	}
	return nil
}

func (r *Relay) reply(to Replier, op, event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return failure.New(failure.Broadcast, op, err)
	}
	if !to.Reply(frame) {
		r.log.Debug("Reply not delivered, connection gone", "event", event)
	}
	return nil
}

// SubmitMessage persists a chat message and broadcasts it to every client,
// the sender included.
func (r *Relay) SubmitMessage(ctx context.Context, p SendMessagePayload) (chat.Message, error) {
	msg, err := r.messages.Append(ctx, chat.Message{
		Content: p.Content,
		Sender:  p.Sender,
		RoomID:  r.room(p.RoomID),
	})
	if err != nil {
		return chat.Message{}, err
	}
	if err := r.broadcast(ctx, "relay.submit_message", EventReceiveMessage, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// RecentMessages returns the history window of a room, oldest first.
func (r *Relay) RecentMessages(ctx context.Context, roomID string) ([]chat.Message, error) {
	return r.messages.Recent(ctx, r.room(roomID))
}

// FetchMessages replies with the history window of a room to one client only.
func (r *Relay) FetchMessages(ctx context.Context, to Replier, roomID string) error {
	messages, err := r.RecentMessages(ctx, roomID)
	if err != nil {
		return err
	}
	return r.reply(to, "relay.fetch_messages", EventPreviousMessages, messages)
}

// CreatePoll persists a new poll and broadcasts it.
func (r *Relay) CreatePoll(ctx context.Context, p CreatePollPayload) (poll.Poll, error) {
	options := lo.Map(p.Options, func(o OptionPayload, _ int) string { return o.Text })
	created, err := r.polls.Create(ctx, p.ID, r.room(p.RoomID), p.Creator, p.Question, options)
	if err != nil {
		return poll.Poll{}, err
	}
	if err := r.broadcast(ctx, "relay.create_poll", EventNewPoll, created); err != nil {
		return created, err
	}
	return created, nil
}

// ListPolls returns every poll of a room by creation time.
func (r *Relay) ListPolls(ctx context.Context, roomID string) ([]poll.Poll, error) {
	return r.polls.List(ctx, r.room(roomID))
}

// FetchPolls replies with the polls of a room to one client only.
func (r *Relay) FetchPolls(ctx context.Context, to Replier, roomID string) error {
	polls, err := r.ListPolls(ctx, roomID)
	if err != nil {
		return err
	}
	return r.reply(to, "relay.fetch_polls", EventPolls, polls)
}

// Vote records one vote and broadcasts the updated poll. Unknown polls and
// repeated voters produce no broadcast and no error.
func (r *Relay) Vote(ctx context.Context, p VotePayload) (poll.Poll, poll.Outcome, error) {
	if p.OptionIndex == nil {
		return poll.Poll{}, 0, failure.New(failure.Validation, "relay.vote", errMissingOptionIndex)
	}
	updated, outcome, err := r.polls.Vote(ctx, p.PollID, *p.OptionIndex, p.Voter)
	if err != nil {
		return poll.Poll{}, outcome, err
	}
	if outcome != poll.Recorded {
		r.log.Debug("Vote ignored", "poll_id", p.PollID, "voter", p.Voter, "kind", ignoredVoteKind(outcome))
		return updated, outcome, nil
	}
	if err := r.broadcast(ctx, "relay.vote", EventPollUpdated, updated); err != nil {
		return updated, outcome, err
	}
	return updated, outcome, nil
}

func ignoredVoteKind(outcome poll.Outcome) failure.Kind {
	if outcome == poll.PollMissing {
		return failure.NotFound
	}
	return failure.DuplicateVote
}
