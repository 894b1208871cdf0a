package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

// imapSession drives one imapclient.Client. Unsolicited EXISTS updates are
// funnelled through a one-slot channel so a change arriving between idle
// cycles is not lost.
type imapSession struct {
	client  *imapclient.Client
	logger  *slog.Logger
	mailbox string
	state   State
	updates chan uint32
}

var _ Session = (*imapSession)(nil)

func (s *imapSession) unilateralHandler() *imapclient.UnilateralDataHandler {
	return &imapclient.UnilateralDataHandler{
		Mailbox: func(data *imapclient.UnilateralDataMailbox) {
			if data.NumMessages == nil {
				return
			}
			select {
			case s.updates <- *data.NumMessages:
			default:
			}
		},
	}
}

func (s *imapSession) State() State {
	return s.state
}

func (s *imapSession) Select(ctx context.Context, mailbox string) (MailboxInfo, error) {
	if err := ctx.Err(); err != nil {
		return MailboxInfo{}, err
	}
	if s.state < Authenticated {
		return MailboxInfo{}, E(KindConnection, "select", errors.Errorf("invalid state %s", s.state))
	}

	data, err := s.client.Select(mailbox, nil).Wait()
	if err != nil {
		return MailboxInfo{}, classifyCommandError(KindMailbox, "select", err)
	}

	s.mailbox = mailbox
	s.state = Selected
	s.drainUpdates()

	info := MailboxInfo{
		Name:        mailbox,
		NumMessages: data.NumMessages,
		UIDNext:     uint32(data.UIDNext),
	}
	s.logger.Debug("mailbox selected",
		"mailbox", mailbox, "messages", info.NumMessages, "uid_next", info.UIDNext)
	return info, nil
}

func (s *imapSession) IdleWait(ctx context.Context, timeout time.Duration) (Signal, error) {
	if s.state != Selected {
		return SignalNone, E(KindConnection, "idle", errors.Errorf("invalid state %s", s.state))
	}

	// A push that arrived while we were fetching is already queued.
	select {
	case <-s.updates:
		return SignalChange, nil
	default:
	}

	idleCmd, err := s.client.Idle()
	if err != nil {
		return SignalNone, E(KindConnection, "idle", err)
	}
	s.state = Idling
	defer func() {
		if s.state == Idling {
			s.state = Selected
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	sig := SignalNone
	var waitErr error
	select {
	case <-s.updates:
		sig = SignalChange
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := idleCmd.Close(); err != nil && waitErr == nil && !isBenignIdleError(err) {
		return SignalNone, E(KindConnection, "idle stop", err)
	}
	if err := idleCmd.Wait(); err != nil && waitErr == nil && !isBenignIdleError(err) {
		return SignalNone, E(KindConnection, "idle wait", err)
	}
	return sig, waitErr
}

func (s *imapSession) FetchSince(ctx context.Context, uid uint32) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.state != Selected {
		return nil, E(KindFetch, "fetch", errors.Errorf("invalid state %s", s.state))
	}

	// Open-ended UID range; the caller filters out the boundary echo.
	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(uid) + 1, Stop: 0}}
	section := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}
	options := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	}

	fetchCmd := s.client.Fetch(uidSet, options)
	var raws []RawMessage
	for {
		if err := ctx.Err(); err != nil {
			_ = fetchCmd.Close()
			return nil, err
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			return nil, E(KindFetch, "fetch", err)
		}
		raws = append(raws, RawMessage{
			UID:    uint32(buf.UID),
			Header: headerSection(buf),
			Date:   buf.InternalDate,
		})
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, classifyCommandError(KindFetch, "fetch", err)
	}
	return raws, nil
}

func (s *imapSession) Close() error {
	if s.client == nil || s.state == Disconnected {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("logout failed", "error", err)
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug("close failed", "error", err)
	}
	s.state = Disconnected
	s.logger.Info("logged out", "mailbox", s.mailbox)
	return nil
}

func (s *imapSession) drainUpdates() {
	for {
		select {
		case <-s.updates:
		default:
			return
		}
	}
}

func headerSection(buf *imapclient.FetchMessageBuffer) []byte {
	for _, sec := range buf.BodySection {
		if sec.Section != nil && sec.Section.Specifier == imap.PartSpecifierHeader {
			return sec.Bytes
		}
	}
	// Some servers answer with a bare BODY[] section; take what we got.
	for _, sec := range buf.BodySection {
		return sec.Bytes
	}
	return nil
}

// classifyCommandError maps a tagged NO/BAD response to kind and anything
// else (a dead connection, a protocol failure) to KindConnection.
func classifyCommandError(kind Kind, op string, err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return E(kind, op, err)
	}
	return E(KindConnection, op, err)
}

// The idle teardown races the connection; a socket closed under it is not
// a failure worth reconnecting over.
func isBenignIdleError(err error) bool {
	return err == nil || strings.Contains(err.Error(), "use of closed network connection")
}
