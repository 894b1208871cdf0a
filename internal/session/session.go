// Package session owns a single authenticated IMAP connection: dialing,
// login, mailbox selection, the IDLE wait, header fetches and teardown.
// It carries no retry policy; reconnect decisions belong to the watch loop.
package session

import (
	"context"
	"time"
)

// State tracks where a session is in its lifecycle. Operations are only
// valid once the connection has reached the required state: Select needs
// Authenticated, IdleWait and FetchSince need Selected.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Selected
	Idling
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Selected:
		return "selected"
	case Idling:
		return "idling"
	default:
		return "unknown"
	}
}

// Signal is the outcome of one idle wait.
type Signal int

const (
	// SignalNone means the bounded wait elapsed with no news. Used as a
	// liveness heartbeat, never treated as an error.
	SignalNone Signal = iota
	// SignalChange means the server pushed a mailbox-changed notification.
	SignalChange
)

// MailboxInfo describes a mailbox at selection time.
type MailboxInfo struct {
	Name        string
	NumMessages uint32
	// UIDNext is the UID the server will assign to the next arriving
	// message. The watch boundary is established from it at select time.
	UIDNext uint32
}

// RawMessage is the unparsed fetch result for one message: its UID, the
// raw header section and the server receipt timestamp.
type RawMessage struct {
	UID    uint32
	Header []byte
	Date   time.Time
}

// Session is one live authenticated connection. Exactly one goroutine
// drives a Session at a time; there is no cross-session sharing.
type Session interface {
	// Select opens the named mailbox and reports its current extent.
	Select(ctx context.Context, mailbox string) (MailboxInfo, error)
	// IdleWait blocks in IDLE until the server pushes a change, timeout
	// elapses (SignalNone, not an error), or ctx is cancelled. Each call
	// is one bounded idle cycle, so the idle mode is refreshed well
	// before any server-imposed duration limit.
	IdleWait(ctx context.Context, timeout time.Duration) (Signal, error)
	// FetchSince retrieves header data for every message with UID
	// strictly greater than uid. Servers may echo back the last existing
	// message for an open-ended range; callers must discard UIDs at or
	// below their boundary.
	FetchSince(ctx context.Context, uid uint32) ([]RawMessage, error)
	// Close is a best-effort graceful logout. It swallows transport
	// errors during teardown and always releases the connection.
	Close() error
	// State reports the connection lifecycle state.
	State() State
}

// Connector produces authenticated sessions. The watch loop calls it once
// per connection attempt.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}
