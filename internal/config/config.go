// Package config resolves the watch configuration from an optional YAML
// file and environment variables. Secrets stay in the environment; the
// file carries only tuning and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envIMAPHost = "MAILWATCH_IMAP_HOST"
	envIMAPPort = "MAILWATCH_IMAP_PORT"
	envIMAPUser = "MAILWATCH_IMAP_USER"
	envIMAPPass = "MAILWATCH_IMAP_PASS"
	envMailbox  = "MAILWATCH_MAILBOX"
	envHTTPAddr = "MAILWATCH_HTTP_ADDR"
)

// Config holds the watch settings. Duration fields are strings so the YAML
// surface can use "90s", "5m" or "1d" uniformly.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"`
	TLS      *bool  `yaml:"tls"`

	IdleRefresh    string `yaml:"idle_refresh"`
	Heartbeat      string `yaml:"heartbeat"`
	BackoffInitial string `yaml:"backoff_initial"`
	BackoffMax     string `yaml:"backoff_max"`

	HTTPAddr string `yaml:"http_addr"`
}

// Timings are the parsed duration knobs; zero values mean "use defaults".
type Timings struct {
	IdleRefresh    time.Duration
	Heartbeat      time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Load reads configuration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables on cfg. Environment wins over the
// file so deployments can override without editing it.
func ApplyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv(envIMAPHost)); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv(envIMAPPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", envIMAPPort, err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(envIMAPUser)); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(envIMAPPass); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(envMailbox)); v != "" {
		cfg.Mailbox = v
	}
	if v := strings.TrimSpace(os.Getenv(envHTTPAddr)); v != "" {
		cfg.HTTPAddr = v
	}
	return cfg, nil
}

// Validate ensures required settings are present, reporting every missing
// one at once.
func Validate(cfg Config) error {
	missing := []string{}
	if strings.TrimSpace(cfg.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port out of range: %d", cfg.Port)
	}

	if _, err := ParseTimings(cfg); err != nil {
		return err
	}
	return nil
}

// UseTLS reports the TLS toggle, defaulting to on.
func (c Config) UseTLS() bool {
	if c.TLS == nil {
		return true
	}
	return *c.TLS
}

// ParseTimings parses the duration knobs.
func ParseTimings(cfg Config) (Timings, error) {
	var t Timings
	var err error
	if t.IdleRefresh, err = ParseRelativeDuration(cfg.IdleRefresh); err != nil {
		return t, fmt.Errorf("invalid idle_refresh: %w", err)
	}
	if t.Heartbeat, err = ParseRelativeDuration(cfg.Heartbeat); err != nil {
		return t, fmt.Errorf("invalid heartbeat: %w", err)
	}
	if t.BackoffInitial, err = ParseRelativeDuration(cfg.BackoffInitial); err != nil {
		return t, fmt.Errorf("invalid backoff_initial: %w", err)
	}
	if t.BackoffMax, err = ParseRelativeDuration(cfg.BackoffMax); err != nil {
		return t, fmt.Errorf("invalid backoff_max: %w", err)
	}
	return t, nil
}

// ParseRelativeDuration parses a Go duration with an extra "d" (day)
// suffix. An empty value parses to zero.
func ParseRelativeDuration(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasSuffix(trimmed, "d") {
		daysValue := strings.TrimSuffix(trimmed, "d")
		days, err := strconv.ParseFloat(strings.TrimSpace(daysValue), 64)
		if err != nil {
			return 0, err
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	dur, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return dur, nil
}
