package postgres

import (
	"log/slog"
	"time"

	"github.com/full-stack-biz/mailboxer/retry"
)

// Default configuration values.
const (
	DefaultTablePrefix = "mailboxer"
	DefaultTimeout     = 10 * time.Second
)

// options holds PostgreSQL store configuration.
type options struct {
	tablePrefix  string
	timeout      time.Duration
	logger       *slog.Logger
	connectRetry retry.Config
}

func newOptions(opts ...Option) *options {
	o := &options{
		tablePrefix:  DefaultTablePrefix,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
		connectRetry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a PostgreSQL store.
type Option func(*options)

// WithTablePrefix sets the table name prefix (default "mailboxer").
func WithTablePrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.tablePrefix = prefix
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConnectRetry sets the backoff policy for the Connect ping.
func WithConnectRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.connectRetry = cfg
	}
}
