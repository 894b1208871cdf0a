package main

import (
	"fmt"
	"log/slog"

	"mailwatch/internal/notify"
	"mailwatch/pkg/message"
)

// resolveCallback maps a callback name to its handler. The log callback is
// the default; webhook needs a base URL.
func resolveCallback(name, webhookURL string, logger *slog.Logger) (message.HandlerFunc, error) {
	switch name {
	case "log":
		return logCallback(logger), nil
	case "webhook":
		if webhookURL == "" {
			return nil, fmt.Errorf("webhook callback requires --webhook-url")
		}
		notifier := notify.New(notify.WithWebhookURL(webhookURL))
		return notifier.Notify, nil
	default:
		return nil, fmt.Errorf("unknown callback %q (available: log, webhook)", name)
	}
}

func logCallback(logger *slog.Logger) message.HandlerFunc {
	return func(msg message.Message) error {
		logger.Info("new mail",
			"uid", msg.UID,
			"subject", msg.Subject,
			"sender", msg.Sender,
			"date", msg.Date,
		)
		return nil
	}
}
