// Package failure classifies errors raised while handling room events.
//
// The relay never forwards these to clients; the kind only drives logging.
package failure

import "errors"

// Kind is a machine-readable error class.
type Kind string

const (
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
	DuplicateVote Kind = "duplicate_vote"
	Persistence   Kind = "persistence"
	Conflict      Kind = "conflict"
	Decode        Kind = "decode"
	Broadcast     Kind = "broadcast"
	Unknown       Kind = "unknown"
)

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: Validation}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New wraps err under the given kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
