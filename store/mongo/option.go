package mongo

import (
	"log/slog"
	"time"

	"github.com/full-stack-biz/mailboxer/retry"
)

// Default configuration values.
const (
	DefaultDatabase         = "mailboxer"
	DefaultCollectionPrefix = "mailboxer"
	DefaultTimeout          = 10 * time.Second
)

// options holds MongoDB store configuration.
type options struct {
	database         string
	collectionPrefix string
	timeout          time.Duration
	logger           *slog.Logger
	connectRetry     retry.Config
}

func newOptions(opts ...Option) *options {
	o := &options{
		database:         DefaultDatabase,
		collectionPrefix: DefaultCollectionPrefix,
		timeout:          DefaultTimeout,
		logger:           slog.Default(),
		connectRetry:     retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a MongoDB store.
type Option func(*options)

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithCollectionPrefix sets the collection name prefix (default "mailboxer").
func WithCollectionPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.collectionPrefix = prefix
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
