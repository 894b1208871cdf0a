package session

import (
	"errors"
	"fmt"
)

// Kind classifies a session failure so the watch loop can decide between
// reconnecting and giving up.
type Kind int

const (
	// KindConnection covers transport-level failures: DNS, refused
	// connections, TLS handshakes, dropped sockets. Transient.
	KindConnection Kind = iota
	// KindTimeout covers an exceeded connect deadline. Transient. An idle
	// wait elapsing is not an error at all; it is a NoChange signal.
	KindTimeout
	// KindAuth covers credential rejection. Fatal.
	KindAuth
	// KindMailbox covers a missing or unselectable mailbox. Fatal.
	KindMailbox
	// KindFetch covers a failed or partial header fetch. Transient.
	KindFetch
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindMailbox:
		return "mailbox"
	case KindFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// Error is a classified session failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err as a classified session error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classification of err, or false if err is not a
// session error.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err cannot be cured by reconnecting: bad
// credentials or a nonexistent mailbox.
func IsFatal(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindAuth || kind == KindMailbox)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	kind, ok := KindOf(err)
	return ok && !(kind == KindAuth || kind == KindMailbox)
}
