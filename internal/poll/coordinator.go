package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-roomrelay/internal/failure"
)

// Outcome tells a caller whether a vote changed the poll.
type Outcome int

const (
	Recorded Outcome = iota + 1
	PollMissing
	AlreadyVoted
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case PollMissing:
		return "poll_missing"
	case AlreadyVoted:
		return "already_voted"
	default:
		return "unknown"
	}
}

type Store interface {
	Insert(ctx context.Context, p Poll) error
	Get(ctx context.Context, id string) (Poll, error)
	ListByRoom(ctx context.Context, roomID string) ([]Poll, error)
	Replace(ctx context.Context, p Poll) (Poll, error)
}

// Coordinator owns every poll mutation. Votes on the same poll are
// serialized by a per-poll lock; the version check on Replace covers
// writers in other processes sharing the same database.
type Coordinator struct {
	store    Store
	locks    *keyedLocks
	log      *slog.Logger
	attempts int
	now      func() time.Time
}

func NewCoordinator(store Store, log *slog.Logger, attempts int) *Coordinator {
	if attempts <= 0 {
		attempts = 1
	}
	return &Coordinator{
		store:    store,
		locks:    newKeyedLocks(),
		log:      log,
		attempts: attempts,
		now:      time.Now,
	}
}

// Create validates and stores a new poll. Client supplied tallies are discarded.
func (c *Coordinator) Create(ctx context.Context, id, roomID, creator, question string, options []string) (Poll, error) {
	p, err := New(id, roomID, creator, question, options, c.now().UTC())
	if err != nil {
		return Poll{}, failure.New(failure.Validation, "poll.create", err)
	}
	if err := c.store.Insert(ctx, p); err != nil {
		return Poll{}, failure.New(failure.Persistence, "poll.create", err)
	}
	return p, nil
}

func (c *Coordinator) List(ctx context.Context, roomID string) ([]Poll, error) {
	polls, err := c.store.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, failure.New(failure.Persistence, "poll.list", err)
	}
	return polls, nil
}

// Vote records voter's choice of optionIndex on pollID.
//
// An unknown poll or a voter that already voted on any option is a no-op
// reported through the Outcome, not an error.
func (c *Coordinator) Vote(ctx context.Context, pollID string, optionIndex int, voter string) (Poll, Outcome, error) {
	if voter == "" {
		return Poll{}, 0, failure.New(failure.Validation, "poll.vote", ErrEmptyVoter)
	}

	// Giving up in the queue is contention, not a storage fault.
	unlock, err := c.locks.Lock(ctx, pollID)
	if err != nil {
		return Poll{}, 0, failure.New(failure.Conflict, "poll.vote", fmt.Errorf("wait for poll %s: %w", pollID, err))
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		current, err := c.store.Get(ctx, pollID)
		if errors.Is(err, ErrNotFound) {
			return Poll{}, PollMissing, nil
		}
		if err != nil {
			return Poll{}, 0, failure.New(failure.Persistence, "poll.vote", err)
		}

		if _, voted := current.VotedFor(voter); voted {
			return current, AlreadyVoted, nil
		}

		next, err := current.Cast(optionIndex, voter)
		if err != nil {
			return Poll{}, 0, failure.New(failure.Validation, "poll.vote", err)
		}

		stored, err := c.store.Replace(ctx, next)
		if err == nil {
			return stored, Recorded, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Poll{}, 0, failure.New(failure.Persistence, "poll.vote", err)
		}
		if attempt >= c.attempts {
			return Poll{}, 0, failure.New(failure.Conflict, "poll.vote", err)
		}
		c.log.Debug("Poll version moved, retrying vote", "poll_id", pollID, "attempt", attempt)
	}
}
