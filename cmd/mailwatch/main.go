package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"mailwatch/internal/config"
	"mailwatch/internal/httpapi"
	"mailwatch/internal/session"
	"mailwatch/internal/telemetry"
	"mailwatch/internal/watch"
	"mailwatch/pkg/message"
)

var version = "dev"

func main() {
	// A .env file is a local convenience, not a requirement.
	_ = godotenv.Load(".env")

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "mailwatch",
		Usage:   "watch an IMAP mailbox and react to new mail",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "IMAP server host",
				EnvVars: []string{"MAILWATCH_IMAP_HOST", "SERVER"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "IMAP server port",
				EnvVars: []string{"MAILWATCH_IMAP_PORT"},
			},
			&cli.StringFlag{
				Name:    "user",
				Usage:   "IMAP account name",
				EnvVars: []string{"MAILWATCH_IMAP_USER", "EMAIL"},
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "IMAP account password",
				EnvVars: []string{"MAILWATCH_IMAP_PASS", "PASS"},
			},
			&cli.StringFlag{
				Name:    "mailbox",
				Usage:   "mailbox to watch",
				EnvVars: []string{"MAILWATCH_MAILBOX"},
			},
			&cli.BoolFlag{
				Name:  "plaintext",
				Usage: "connect without TLS",
			},
			&cli.StringFlag{
				Name:  "callback",
				Usage: "callback to invoke per message (log, webhook)",
				Value: "log",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Usage:   "base URL for the webhook callback",
				EnvVars: []string{"MAILWATCH_WEBHOOK_URL"},
			},
			&cli.StringSliceFlag{
				Name:  "filter-sender",
				Usage: "only deliver messages whose sender contains this (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "filter-subject",
				Usage: "only deliver messages whose subject contains this (repeatable)",
			},
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "listen address for the status API (empty disables it)",
				EnvVars: []string{"MAILWATCH_HTTP_ADDR"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "otel",
				Usage: "export telemetry over OTLP",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	timings, err := config.ParseTimings(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := buildLogger(c.Bool("otel"), c.String("log-level"))
	if err != nil {
		return err
	}

	if c.Bool("otel") {
		shutdown, err := telemetry.Setup(ctx, version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	manager, err := session.NewManager(
		session.WithServer(cfg.Host, cfg.Port),
		session.WithAuth(cfg.Username, cfg.Password),
		session.WithTLS(cfg.UseTLS(), nil),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	handler, err := resolveCallback(c.String("callback"), c.String("webhook-url"), logger)
	if err != nil {
		return err
	}

	opts := []watch.Option{
		watch.WithConnector(manager),
		watch.WithHandler(handler),
		watch.WithLogger(logger),
	}
	if cfg.Mailbox != "" {
		opts = append(opts, watch.WithMailbox(cfg.Mailbox))
	}
	if filter := buildFilter(c.StringSlice("filter-sender"), c.StringSlice("filter-subject")); filter != nil {
		opts = append(opts, watch.WithFilter(filter))
	}
	if timings.IdleRefresh > 0 || timings.Heartbeat > 0 {
		opts = append(opts, watch.WithIdleTuning(timings.IdleRefresh, timings.Heartbeat))
	}
	if timings.BackoffInitial > 0 || timings.BackoffMax > 0 {
		opts = append(opts, watch.WithBackoffTuning(timings.BackoffInitial, timings.BackoffMax))
	}

	watcher, err := watch.New(opts...)
	if err != nil {
		return err
	}

	if addr := c.String("http-addr"); addr != "" {
		api := httpapi.New(watcher, logger)
		go func() {
			if err := api.Listen(addr); err != nil {
				logger.Error("status api", "error", err)
			}
		}()
		defer func() {
			if err := api.Shutdown(); err != nil {
				logger.Error("status api shutdown", "error", err)
			}
		}()
		logger.Info("status api listening", "addr", addr)
	}

	if err := watcher.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// resolveConfig layers the optional config file, environment and flags,
// with flags winning.
func resolveConfig(c *cli.Context) (config.Config, error) {
	var cfg config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	cfg, err := config.ApplyEnv(cfg)
	if err != nil {
		return cfg, err
	}

	if v := c.String("host"); v != "" {
		cfg.Host = v
	}
	if v := c.Int("port"); v != 0 {
		cfg.Port = v
	}
	if v := c.String("user"); v != "" {
		cfg.Username = v
	}
	if v := c.String("password"); v != "" {
		cfg.Password = v
	}
	if v := c.String("mailbox"); v != "" {
		cfg.Mailbox = v
	}
	if v := c.String("http-addr"); v != "" {
		cfg.HTTPAddr = v
	}
	if c.Bool("plaintext") {
		plaintext := false
		cfg.TLS = &plaintext
	}
	return cfg, nil
}

func buildLogger(otelEnabled bool, level string) (*slog.Logger, error) {
	if otelEnabled {
		return otelslog.NewLogger(telemetry.ServiceName), nil
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, errors.New("unknown log level " + level)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}

// buildFilter combines the repeatable sender/subject flags. Values within
// one flag are alternatives; the two flags must both match.
func buildFilter(senders, subjects []string) message.Filter {
	var parts []message.Filter
	if len(senders) > 0 {
		alternatives := make([]message.Filter, 0, len(senders))
		for _, s := range senders {
			alternatives = append(alternatives, message.SenderContains(s))
		}
		parts = append(parts, message.Or(alternatives...))
	}
	if len(subjects) > 0 {
		alternatives := make([]message.Filter, 0, len(subjects))
		for _, s := range subjects {
			alternatives = append(alternatives, message.SubjectContains(s))
		}
		parts = append(parts, message.Or(alternatives...))
	}
	if len(parts) == 0 {
		return nil
	}
	return message.And(parts...)
}
