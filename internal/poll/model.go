package poll

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// MinOptions is the smallest poll that can be created. There is no upper bound.
const MinOptions = 2

var (
	ErrNotFound          = errors.New("poll not found")
	ErrVersionConflict   = errors.New("poll was modified concurrently")
	ErrOptionOutOfRange  = errors.New("option index out of range")
	ErrEmptyVoter        = errors.New("voter is empty")
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrEmptyOption       = errors.New("option text is empty")
	ErrMissingID         = errors.New("poll id is empty")
	ErrMissingCreator    = errors.New("poll creator is empty")
	ErrOptionCount       = fmt.Errorf("a poll needs at least %d options", MinOptions)
	ErrInconsistentTally = errors.New("option votes do not match its voters")
	ErrDuplicateVoter    = errors.New("voter appears in more than one option")
)

type Option struct {
	Text   string   `json:"text"`
	Votes  int      `json:"votes"`
	Voters []string `json:"voters"`
}

type Poll struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Creator   string    `json:"creator"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int64     `json:"-"`
}

// New builds a poll with every option at zero votes.
func New(id, roomID, creator, question string, options []string, createdAt time.Time) (Poll, error) {
	p := Poll{
		ID:        strings.TrimSpace(id),
		RoomID:    roomID,
		Creator:   creator,
		Question:  strings.TrimSpace(question),
		CreatedAt: createdAt,
		Options: lo.Map(options, func(text string, _ int) Option {
			return Option{Text: strings.TrimSpace(text), Voters: []string{}}
		}),
	}
	if err := p.validateShape(); err != nil {
		return Poll{}, err
	}
	return p, nil
}

func (p Poll) validateShape() error {
	switch {
	case p.ID == "":
		return ErrMissingID
	case p.Creator == "":
		return ErrMissingCreator
	case p.Question == "":
		return ErrEmptyQuestion
	case len(p.Options) < MinOptions:
		return ErrOptionCount
	}
	if lo.SomeBy(p.Options, func(o Option) bool { return o.Text == "" }) {
		return ErrEmptyOption
	}
	return nil
}

// VotedFor returns the option index voter picked, if any.
func (p Poll) VotedFor(voter string) (int, bool) {
	for i, o := range p.Options {
		if lo.Contains(o.Voters, voter) {
			return i, true
		}
	}
	return -1, false
}

// Cast records one vote on a copy of p. The receiver is left untouched.
func (p Poll) Cast(optionIndex int, voter string) (Poll, error) {
	if voter == "" {
		return Poll{}, ErrEmptyVoter
	}
	if optionIndex < 0 || optionIndex >= len(p.Options) {
		return Poll{}, ErrOptionOutOfRange
	}
	next := p.Clone()
	opt := &next.Options[optionIndex]
	opt.Voters = append(opt.Voters, voter)
	opt.Votes = len(opt.Voters)
	return next, nil
}

func (p Poll) Clone() Poll {
	c := p
	c.Options = lo.Map(p.Options, func(o Option, _ int) Option {
		o.Voters = append([]string{}, o.Voters...)
		return o
	})
	return c
}

func (p Poll) TotalVotes() int {
	return lo.SumBy(p.Options, func(o Option) int { return o.Votes })
}

// CheckTally verifies the tally invariants: votes equal voter count per
// option, and no voter appears twice across the poll.
func (p Poll) CheckTally() error {
	seen := make(map[string]struct{})
	for i, o := range p.Options {
		if o.Votes != len(o.Voters) {
			return fmt.Errorf("option %d: %w", i, ErrInconsistentTally)
		}
		for _, v := range o.Voters {
			if _, dup := seen[v]; dup {
				return fmt.Errorf("voter %q: %w", v, ErrDuplicateVoter)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}
