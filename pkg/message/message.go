// Package message defines the unit of delivery for a mailbox watch: the
// parsed header metadata of a single mail message, plus the filter
// combinators callers can use to narrow which messages reach their handler.
package message

import (
	"bytes"
	"fmt"
	"time"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message carries the header metadata of one newly arrived mail message.
// Subject and Sender are the delivery contract; UID and Date are identifying
// metadata exposed for extension. A Message is immutable once constructed.
type Message struct {
	Subject string
	Sender  string
	UID     uint32
	Date    time.Time
}

// HandlerFunc is the callback invoked once per newly arrived message.
// A returned error is reported but never stops the watch.
type HandlerFunc func(Message) error

// ParseHeader builds a Message from a raw RFC 5322 header section.
//
// Parsing is tolerant: a missing or malformed field yields an empty string
// for that field rather than an error, so one broken message cannot block
// delivery of the rest of its batch.
func ParseHeader(raw []byte) Message {
	var msg Message

	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return msg
	}
	if entity == nil {
		return msg
	}

	header := mail.Header{Header: entity.Header}

	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	}
	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.Sender = formatAddress(addrs[0])
	}
	if date, err := header.Date(); err == nil {
		msg.Date = date
	}

	return msg
}

func formatAddress(addr *mail.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
	}
	return addr.Address
}
