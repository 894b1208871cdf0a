// Package watch composes session management, change detection and message
// resolution into an unbounded watch loop that survives transient failures
// and stops only on cancellation or fatal misconfiguration.
package watch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"mailwatch/internal/detect"
	"mailwatch/internal/resolve"
	"mailwatch/internal/session"
	"mailwatch/pkg/message"
)

const (
	// DefaultMailbox is the well-known inbox name.
	DefaultMailbox = "INBOX"

	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 2 * time.Minute
)

// Watcher runs the watch loop for a single mailbox. One goroutine owns the
// loop and its session end to end; callers wanting several mailboxes run
// several independent Watchers.
type Watcher struct {
	connector session.Connector
	handler   message.HandlerFunc
	filter    message.Filter
	logger    *slog.Logger

	mailbox        atomic.Value // string
	switchRequests chan string

	refresh        time.Duration
	heartbeat      time.Duration
	backoffInitial time.Duration
	backoffMax     time.Duration

	running atomic.Bool

	delivered        metric.Int64Counter
	reconnects       metric.Int64Counter
	callbackFailures metric.Int64Counter
}

// Option configures a Watcher.
type Option func(*Watcher) error

// New validates the options and returns a Watcher. A connector, a handler
// and a logger are required; the mailbox defaults to INBOX.
func New(opts ...Option) (*Watcher, error) {
	w := Watcher{
		switchRequests: make(chan string, 1),
		refresh:        detect.DefaultRefreshInterval,
		heartbeat:      detect.DefaultHeartbeat,
		backoffInitial: defaultBackoffInitial,
		backoffMax:     defaultBackoffMax,
	}
	w.mailbox.Store(DefaultMailbox)

	for _, opt := range opts {
		if err := opt(&w); err != nil {
			return nil, err
		}
	}

	if w.connector == nil {
		return nil, errors.New("requires connector")
	}
	if w.handler == nil {
		return nil, errors.New("requires handler")
	}
	if w.logger == nil {
		return nil, errors.New("requires slogger")
	}

	meter := otel.Meter("mailwatch/watch")
	var err error
	if w.delivered, err = meter.Int64Counter("mailwatch.messages.delivered"); err != nil {
		return nil, err
	}
	if w.reconnects, err = meter.Int64Counter("mailwatch.session.reconnects"); err != nil {
		return nil, err
	}
	if w.callbackFailures, err = meter.Int64Counter("mailwatch.callback.failures"); err != nil {
		return nil, err
	}

	return &w, nil
}

// WithConnector sets the session source.
func WithConnector(c session.Connector) Option {
	return func(w *Watcher) error {
		w.connector = c
		return nil
	}
}

// WithHandler sets the per-message callback.
func WithHandler(h message.HandlerFunc) Option {
	return func(w *Watcher) error {
		w.handler = h
		return nil
	}
}

// WithFilter suppresses messages the filter rejects before dispatch.
func WithFilter(f message.Filter) Option {
	return func(w *Watcher) error {
		w.filter = f
		return nil
	}
}

// WithMailbox sets the mailbox to watch.
func WithMailbox(name string) Option {
	return func(w *Watcher) error {
		if name == "" {
			return errors.New("mailbox name must not be empty")
		}
		w.mailbox.Store(name)
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		w.logger = logger
		return nil
	}
}

// WithIdleTuning overrides the idle refresh interval and heartbeat bound.
// A zero value keeps the default.
func WithIdleTuning(refresh, heartbeat time.Duration) Option {
	return func(w *Watcher) error {
		if refresh > 0 {
			w.refresh = refresh
		}
		if heartbeat > 0 {
			w.heartbeat = heartbeat
		}
		return nil
	}
}

// WithBackoffTuning overrides the reconnect backoff bounds. A zero value
// keeps the default.
func WithBackoffTuning(initial, max time.Duration) Option {
	return func(w *Watcher) error {
		if initial > 0 {
			w.backoffInitial = initial
		}
		if max > 0 {
			w.backoffMax = max
		}
		return nil
	}
}

// Running reports whether the watch loop is currently executing.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// Mailbox reports the currently watched mailbox name.
func (w *Watcher) Mailbox() string {
	return w.mailbox.Load().(string)
}

// ChangeMailbox asks the running loop to switch to the named mailbox at its
// next suspension point. The new boundary is established from the new
// mailbox's UIDNEXT, so its existing mail is not delivered.
func (w *Watcher) ChangeMailbox(name string) error {
	if name == "" {
		return errors.New("mailbox name must not be empty")
	}
	if !w.running.Load() {
		return errors.New("watcher is not running")
	}
	// Only the most recent request matters.
	for {
		select {
		case w.switchRequests <- name:
			return nil
		default:
			select {
			case <-w.switchRequests:
			default:
			}
		}
	}
}

// Run executes the watch loop until ctx is cancelled, in which case it
// returns nil, or until a fatal error (credential rejection, nonexistent
// mailbox) occurs, which is returned unmodified. Every transient failure
// tears the session down and reconnects after capped, jittered exponential
// backoff; there is no bounded retry count.
func (w *Watcher) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.backoffInitial
	bo.MaxInterval = w.backoffMax
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			w.logger.Info("watch stopped")
			return nil
		}

		err := w.watchSession(ctx, bo.Reset)
		switch {
		case ctx.Err() != nil || errors.Is(err, context.Canceled):
			w.logger.Info("watch stopped")
			return nil
		case session.IsFatal(err):
			w.logger.Error("fatal watch error", "error", err)
			return err
		}

		wait := bo.NextBackOff()
		w.logger.Warn("session failed, reconnecting",
			"error", err, "backoff", wait)
		w.reconnects.Add(ctx, 1)

		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// watchSession runs one session lifetime: connect, select, then the
// await-change/resolve/dispatch cycle until something breaks. onReady is
// called once the mailbox is selected so the reconnect backoff can reset.
func (w *Watcher) watchSession(ctx context.Context, onReady func()) error {
	sess, err := w.connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Best-effort teardown; Close never fails the caller.
		_ = sess.Close()
	}()

	info, err := sess.Select(ctx, w.Mailbox())
	if err != nil {
		return err
	}
	onReady()

	// Anything existing at selection time is not new: the boundary starts
	// at UIDNEXT-1, so only mail arriving after the watch starts is
	// delivered.
	st := boundaryFor(info)
	w.logger.Info("watching mailbox",
		"mailbox", info.Name, "messages", info.NumMessages, "boundary", st.LastUID)

	detector := detect.New(sess, w.logger,
		detect.WithRefreshInterval(w.refresh),
		detect.WithHeartbeat(w.heartbeat),
	)
	resolver := resolve.New(w.logger)

	for {
		if name, ok := w.pendingSwitch(); ok {
			info, err = sess.Select(ctx, name)
			if err != nil {
				return err
			}
			w.mailbox.Store(name)
			st = boundaryFor(info)
			w.logger.Info("switched mailbox", "mailbox", name, "boundary", st.LastUID)
		}

		sig, err := detector.Next(ctx)
		if err != nil {
			return err
		}
		if sig != session.SignalChange {
			continue
		}

		msgs, next, err := resolver.ResolveNew(ctx, sess, st)
		if err != nil {
			return err
		}
		st = next

		for _, msg := range msgs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if w.filter != nil && !w.filter.Match(msg) {
				w.logger.Debug("message filtered", "uid", msg.UID)
				continue
			}
			w.dispatch(ctx, msg)
		}
	}
}

// dispatch invokes the callback for one message. Callback errors and panics
// are contained here: they are logged and counted, and never terminate the
// watch or skip the rest of the batch.
func (w *Watcher) dispatch(ctx context.Context, msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			w.callbackFailures.Add(ctx, 1)
			w.logger.Error("callback panicked",
				"uid", msg.UID, "subject", msg.Subject, "panic", r)
		}
	}()

	w.logger.Debug("dispatching message",
		"uid", msg.UID, "subject", msg.Subject, "sender", msg.Sender)
	if err := w.handler(msg); err != nil {
		w.callbackFailures.Add(ctx, 1)
		w.logger.Error("callback failed",
			"uid", msg.UID, "subject", msg.Subject, "error", err)
		return
	}
	w.delivered.Add(ctx, 1)
}

func (w *Watcher) pendingSwitch() (string, bool) {
	select {
	case name := <-w.switchRequests:
		if name != w.Mailbox() {
			return name, true
		}
		return "", false
	default:
		return "", false
	}
}

func boundaryFor(info session.MailboxInfo) resolve.State {
	st := resolve.State{Known: true}
	if info.UIDNext > 0 {
		st.LastUID = info.UIDNext - 1
	}
	return st
}
