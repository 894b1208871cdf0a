package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwatch/pkg/message"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveCallback(t *testing.T) {
	tests := []struct {
		name        string
		callback    string
		webhookURL  string
		expectedErr string
	}{
		{name: "log callback", callback: "log"},
		{name: "webhook callback", callback: "webhook", webhookURL: "https://hooks.example.com"},
		{name: "webhook without url", callback: "webhook", expectedErr: "requires --webhook-url"},
		{name: "unknown callback", callback: "carrier-pigeon", expectedErr: "unknown callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, err := resolveCallback(tt.callback, tt.webhookURL, discardLogger())
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, handler)
		})
	}
}

func TestLogCallbackNeverFails(t *testing.T) {
	handler := logCallback(discardLogger())
	assert.NoError(t, handler(message.Message{Subject: "Hi", Sender: "a@x.com", UID: 6}))
}

func TestBuildFilter(t *testing.T) {
	msg := message.Message{Subject: "Weekly report", Sender: "Alice <alice@example.com>"}

	t.Run("no flags means no filter", func(t *testing.T) {
		assert.Nil(t, buildFilter(nil, nil))
	})

	t.Run("sender alternatives", func(t *testing.T) {
		f := buildFilter([]string{"bob@", "alice@"}, nil)
		require.NotNil(t, f)
		assert.True(t, f.Match(msg))
	})

	t.Run("sender and subject must both match", func(t *testing.T) {
		f := buildFilter([]string{"alice@"}, []string{"invoice"})
		require.NotNil(t, f)
		assert.False(t, f.Match(msg))

		f = buildFilter([]string{"alice@"}, []string{"report"})
		require.NotNil(t, f)
		assert.True(t, f.Match(msg))
	})
}

func TestBuildLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		logger, err := buildLogger(false, level)
		require.NoError(t, err, "level %s", level)
		assert.NotNil(t, logger)
	}

	_, err := buildLogger(false, "shout")
	assert.Error(t, err)
}
