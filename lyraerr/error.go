// Package lyraerr defines the error taxonomy shared by every subsystem in
// this module (dealer, token, spclient, loader, player). A Kind tells a
// caller whether an error was locally recovered, should be retried, or must
// be surfaced — the taxonomy matches the spec's error handling design
// one-for-one rather than inventing a parallel set of sentinel errors.
package lyraerr

import "fmt"

// Kind classifies an Error for branching logic (retry, surface, abort).
type Kind int

const (
	// Unknown is the zero value; never constructed deliberately.
	Unknown Kind = iota
	// InvalidArgument covers malformed URIs, unsupported formats, bad input.
	InvalidArgument
	// AlreadyHandled is returned when a handler is registered twice at the
	// same path.
	AlreadyHandled
	// FailedPrecondition covers missing attributes and unsolvable challenges.
	FailedPrecondition
	// Unavailable is a transient transport failure; eligible for retry.
	Unavailable
	// DeadlineExceeded is a transient timeout; eligible for retry.
	DeadlineExceeded
	// Unimplemented covers unknown wire discriminants.
	Unimplemented
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case AlreadyHandled:
		return "already_handled"
	case FailedPrecondition:
		return "failed_precondition"
	case Unavailable:
		return "unavailable"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case Unimplemented:
		return "unimplemented"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind and an optional wrapped
// cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error wrapping an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error;
// otherwise returns Unknown.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// asError is a tiny errors.As shim kept local to avoid importing errors
// solely for this one call site in multiple files.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
