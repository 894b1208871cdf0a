package session

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

const (
	// DefaultPort is the standard IMAP-over-TLS port.
	DefaultPort = 993

	defaultDialTimeout = 30 * time.Second
)

// Manager dials and authenticates sessions against one server/account.
type Manager struct {
	host        string
	port        int
	username    string
	password    string
	useTLS      bool
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	logger      *slog.Logger

	dial dialFunc
}

type dialFunc func(addr string, timeout time.Duration) (net.Conn, error)

// Option configures a Manager.
type Option func(*Manager) error

// NewManager validates the options and returns a Manager. Host, credentials
// and a logger are required.
func NewManager(opts ...Option) (*Manager, error) {
	mgr := Manager{
		port:        DefaultPort,
		useTLS:      true,
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		if err := opt(&mgr); err != nil {
			return nil, err
		}
	}

	if mgr.host == "" {
		return nil, errors.New("requires host")
	}
	if mgr.username == "" {
		return nil, errors.New("requires username")
	}
	if mgr.password == "" {
		return nil, errors.New("requires password")
	}
	if mgr.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if mgr.dial == nil {
		mgr.dial = mgr.defaultDial
	}

	return &mgr, nil
}

// WithServer sets the host and port to connect to. A port of 0 keeps the
// default IMAP TLS port.
func WithServer(host string, port int) Option {
	return func(mgr *Manager) error {
		mgr.host = host
		if port != 0 {
			mgr.port = port
		}
		return nil
	}
}

// WithAuth sets the login credentials.
func WithAuth(username, password string) Option {
	return func(mgr *Manager) error {
		mgr.username = username
		mgr.password = password
		return nil
	}
}

// WithTLS toggles implicit TLS and optionally overrides the TLS config.
func WithTLS(useTLS bool, config *tls.Config) Option {
	return func(mgr *Manager) error {
		mgr.useTLS = useTLS
		mgr.tlsConfig = config
		return nil
	}
}

// WithDialTimeout bounds the transport dial and TLS handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(mgr *Manager) error {
		if d <= 0 {
			return errors.New("dial timeout must be positive")
		}
		mgr.dialTimeout = d
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(mgr *Manager) error {
		mgr.logger = logger
		return nil
	}
}

func withDialFunc(dial dialFunc) Option {
	return func(mgr *Manager) error {
		mgr.dial = dial
		return nil
	}
}

func (mgr *Manager) defaultDial(addr string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	if !mgr.useTLS {
		return dialer.Dial("tcp", addr)
	}
	config := mgr.tlsConfig
	if config == nil {
		config = &tls.Config{ServerName: mgr.host}
	}
	return tls.DialWithDialer(&dialer, "tcp", addr, config)
}

// Connect establishes the transport, waits for the server greeting, and
// logs in. The returned session is Authenticated; the caller selects a
// mailbox next. Credential rejection is fatal and never retried here or
// anywhere else.
func (mgr *Manager) Connect(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(mgr.host, strconv.Itoa(mgr.port))
	mgr.logger.Debug("dialing", "addr", addr, "tls", mgr.useTLS)

	conn, err := mgr.dial(addr, mgr.dialTimeout)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	sess := &imapSession{
		logger:  mgr.logger,
		state:   Connecting,
		updates: make(chan uint32, 1),
	}
	sess.client = imapclient.New(conn, &imapclient.Options{
		UnilateralDataHandler: sess.unilateralHandler(),
	})

	if err := sess.client.WaitGreeting(); err != nil {
		_ = sess.client.Close()
		return nil, E(KindConnection, "greeting", err)
	}

	if err := sess.client.Login(mgr.username, mgr.password).Wait(); err != nil {
		_ = sess.client.Close()
		return nil, classifyCommandError(KindAuth, "login", err)
	}
	sess.state = Authenticated

	mgr.logger.Info("logged in", "user", mgr.username, "addr", addr)
	return sess, nil
}

func classifyDialError(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return E(KindTimeout, "dial", errors.Wrap(err, addr))
	}
	return E(KindConnection, "dial", errors.Wrap(err, addr))
}
