package session

import (
	"context"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewManagerValidation(t *testing.T) {
	logger := testLogger()

	if _, err := NewManager(WithAuth("user", "pass"), WithLogger(logger)); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewManager(WithServer("imap.example.com", 0), WithLogger(logger)); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := NewManager(WithServer("imap.example.com", 0), WithAuth("user", "pass")); err == nil {
		t.Fatal("expected error for missing logger")
	}
	if _, err := NewManager(
		WithServer("imap.example.com", 0),
		WithAuth("user", "pass"),
		WithLogger(logger),
		WithDialTimeout(-time.Second),
	); err == nil {
		t.Fatal("expected error for non-positive dial timeout")
	}
}

func TestNewManagerDefaults(t *testing.T) {
	mgr, err := NewManager(
		WithServer("imap.example.com", 0),
		WithAuth("user", "pass"),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mgr.port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, mgr.port)
	}
	if !mgr.useTLS {
		t.Fatal("expected TLS on by default")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestConnectClassifiesDialFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"timeout", timeoutError{}, KindTimeout},
		{"refused", errConnRefused, KindConnection},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mgr, err := NewManager(
				WithServer("imap.example.com", 0),
				WithAuth("user", "pass"),
				WithLogger(testLogger()),
				withDialFunc(func(addr string, timeout time.Duration) (net.Conn, error) {
					return nil, tc.err
				}),
			)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, err = mgr.Connect(context.Background())
			if err == nil {
				t.Fatal("expected connect to fail")
			}
			kind, ok := KindOf(err)
			if !ok || kind != tc.kind {
				t.Fatalf("expected kind %s, got %v (classified=%v)", tc.kind, kind, ok)
			}
		})
	}
}

var errConnRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errSyscall("connection refused")}

type errSyscall string

func (e errSyscall) Error() string { return string(e) }

func TestConnectHonorsCancelledContext(t *testing.T) {
	mgr, err := NewManager(
		WithServer("imap.example.com", 0),
		WithAuth("user", "pass"),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mgr.Connect(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
