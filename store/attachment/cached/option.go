package cached

import (
	"log/slog"
	"os"
	"time"
)

// Defaults for the disk cache.
const (
	DefaultMaxBytes = int64(1 << 30)
	DefaultTTL      = 24 * time.Hour
)

type options struct {
	dir      string
	maxBytes int64
	ttl      time.Duration
	logger   *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		dir:      os.TempDir(),
		maxBytes: DefaultMaxBytes,
		ttl:      DefaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the cache.
type Option func(*options)

// WithCacheDir sets the parent directory for cached attachment bodies.
// Defaults to the system temp directory.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// WithMaxBytes caps the total bytes kept on disk. When a new entry
// would exceed the cap, the oldest entries are evicted to make room.
func WithMaxBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// WithTTL bounds how long an unread entry stays cached. Zero disables
// expiry; entries then live until evicted for space.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets the logger for cache housekeeping.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
