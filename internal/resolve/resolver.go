// Package resolve translates a change signal into the ordered batch of
// messages that arrived since the watch boundary.
package resolve

import (
	"context"
	"log/slog"
	"sort"

	"mailwatch/internal/session"
	"mailwatch/pkg/message"
)

// State is the watch boundary: the highest UID already delivered. It lives
// only in process memory and is re-established from the server's UIDNEXT on
// every reconnect, so historical mail is never redelivered.
type State struct {
	LastUID uint32
	Known   bool
}

// Resolver fetches and parses the header metadata of new messages.
type Resolver struct {
	logger *slog.Logger
}

// New returns a Resolver logging through logger.
func New(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// ResolveNew returns the messages with UID strictly above the boundary in
// ascending UID order, plus the advanced boundary. A duplicate or
// false-positive change signal yields an empty batch and an unchanged
// state. A protocol-level fetch failure fails the whole call; a malformed
// header in one message does not, that message is delivered with empty
// fields instead.
func (r *Resolver) ResolveNew(ctx context.Context, sess session.Session, st State) ([]message.Message, State, error) {
	if !st.Known {
		r.logger.Warn("resolve called before boundary was established")
		return nil, st, nil
	}

	raws, err := sess.FetchSince(ctx, st.LastUID)
	if err != nil {
		return nil, st, err
	}

	// An open-ended UID range makes servers echo the last existing
	// message back even when nothing is new; keep strictly-newer only.
	fresh := raws[:0]
	for _, raw := range raws {
		if raw.UID > st.LastUID {
			fresh = append(fresh, raw)
		}
	}
	if len(fresh) == 0 {
		return nil, st, nil
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].UID < fresh[j].UID })

	msgs := make([]message.Message, 0, len(fresh))
	next := st
	for _, raw := range fresh {
		msg := message.ParseHeader(raw.Header)
		msg.UID = raw.UID
		if msg.Date.IsZero() {
			msg.Date = raw.Date
		}
		msgs = append(msgs, msg)
		if raw.UID > next.LastUID {
			next.LastUID = raw.UID
		}
	}

	r.logger.Debug("resolved new messages",
		"count", len(msgs), "boundary", st.LastUID, "new_boundary", next.LastUID)
	return msgs, next, nil
}
