package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHeaderPlain(t *testing.T) {
	raw := []byte("Subject: Hi\r\nFrom: a@x.com\r\nDate: Fri, 01 Mar 2024 12:00:00 +0000\r\n\r\n")

	msg := ParseHeader(raw)
	assert.Equal(t, "Hi", msg.Subject)
	assert.Equal(t, "a@x.com", msg.Sender)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), msg.Date.UTC())
}

func TestParseHeaderDisplayName(t *testing.T) {
	raw := []byte("Subject: Meeting\r\nFrom: \"Ada Lovelace\" <ada@x.com>\r\n\r\n")

	msg := ParseHeader(raw)
	assert.Equal(t, "Ada Lovelace <ada@x.com>", msg.Sender)
}

func TestParseHeaderEncodedWord(t *testing.T) {
	raw := []byte("Subject: =?UTF-8?Q?Caf=C3=A9_re=C3=BCnion?=\r\nFrom: =?UTF-8?Q?Ren=C3=A9?= <rene@x.com>\r\n\r\n")

	msg := ParseHeader(raw)
	assert.Equal(t, "Café reünion", msg.Subject)
	assert.Equal(t, "René <rene@x.com>", msg.Sender)
}

func TestParseHeaderMissingFields(t *testing.T) {
	msg := ParseHeader([]byte("X-Something: else\r\n\r\n"))
	assert.Equal(t, "", msg.Subject)
	assert.Equal(t, "", msg.Sender)
	assert.True(t, msg.Date.IsZero())
}

func TestParseHeaderMalformedSubstitutesEmpty(t *testing.T) {
	cases := map[string][]byte{
		"empty input":    nil,
		"garbage":        []byte("\x00\x01\x02"),
		"malformed from": []byte("Subject: ok\r\nFrom: not an address\r\n\r\n"),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			msg := ParseHeader(raw)
			assert.Equal(t, "", msg.Sender)
		})
	}
}
