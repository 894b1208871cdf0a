// Package detect turns repeated bounded IDLE waits into a logical stream of
// mailbox-change signals, hiding the keep-alive refresh mechanics from the
// watch loop.
package detect

import (
	"context"
	"log/slog"
	"time"

	"mailwatch/internal/session"
)

const (
	// DefaultRefreshInterval bounds a single IDLE cycle. RFC 2177 lets
	// servers drop clients idling past 29 minutes; staying this far under
	// also keeps cancellation latency to a few seconds.
	DefaultRefreshInterval = 20 * time.Second

	// DefaultHeartbeat bounds one Next call. When it elapses with no news
	// the detector emits SignalNone so the loop can observe liveness.
	DefaultHeartbeat = 90 * time.Second
)

// Detector emits one element of the change stream per Next call. It is
// bound to a single session and is restartable per session, not across
// sessions.
type Detector struct {
	sess      session.Session
	refresh   time.Duration
	heartbeat time.Duration
	logger    *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithRefreshInterval overrides how often the IDLE mode is re-issued.
func WithRefreshInterval(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.refresh = d
		}
	}
}

// WithHeartbeat overrides how long Next blocks before emitting SignalNone.
func WithHeartbeat(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.heartbeat = d
		}
	}
}

// New binds a detector to sess.
func New(sess session.Session, logger *slog.Logger, opts ...Option) *Detector {
	det := &Detector{
		sess:      sess,
		refresh:   DefaultRefreshInterval,
		heartbeat: DefaultHeartbeat,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(det)
	}
	if det.heartbeat < det.refresh {
		det.heartbeat = det.refresh
	}
	return det
}

// Next blocks until the server reports a mailbox change (SignalChange), the
// heartbeat elapses with no news (SignalNone), or ctx is cancelled. The
// underlying IDLE mode is refreshed every cycle, so cancellation is
// observed within one refresh interval, not the full heartbeat.
func (det *Detector) Next(ctx context.Context) (session.Signal, error) {
	remaining := det.heartbeat
	for {
		if err := ctx.Err(); err != nil {
			return session.SignalNone, err
		}

		wait := det.refresh
		if remaining < wait {
			wait = remaining
		}

		sig, err := det.sess.IdleWait(ctx, wait)
		if err != nil {
			return session.SignalNone, err
		}
		if sig == session.SignalChange {
			return session.SignalChange, nil
		}

		remaining -= wait
		if remaining <= 0 {
			det.logger.Debug("idle heartbeat", "heartbeat", det.heartbeat)
			return session.SignalNone, nil
		}
	}
}
