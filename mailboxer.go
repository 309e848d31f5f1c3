package mailboxer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"golang.org/x/sync/semaphore"

	"github.com/full-stack-biz/mailboxer/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the mailboxer package without importing store directly.
type (
	ListOptions = store.ListOptions
	SortOrder   = store.SortOrder
	MailboxType = store.MailboxType
)

// Re-exported sort order and mailbox constants.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc

	MailboxInbox   = store.MailboxInbox
	MailboxSentbox = store.MailboxSentbox
)

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// Service manages the messaging system (server-side).
// It handles connections to storage and creates per-participant mailboxes.
//
// Composed of:
//   - ServiceHealth: Health and state queries (IsConnected)
type Service interface {
	ServiceHealth

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections.
	Close(ctx context.Context) error
	// Mailbox returns a mailbox for the given participant.
	// The returned mailbox shares the service's connections.
	Mailbox(p Identity) Mailbox
	// Conversation returns a handle for an existing conversation.
	Conversation(ctx context.Context, conversationID string) (*Conversation, error)
	// Notify delivers a standalone notification to the given recipients.
	// Notifications are not threaded: each recipient gets exactly one
	// receipt outside any conversation.
	Notify(ctx context.Context, recipients []Identity, req NotifyRequest) (*store.Payload, error)
	// CleanupExpired permanently removes expired notifications and their
	// receipts. Call this periodically using your application's scheduler.
	CleanupExpired(ctx context.Context) (*CleanupResult, error)
	// Events returns per-service event instances for subscribing and publishing.
	// Each service has its own events bound to its own event bus, enabling
	// independent event routing and parallel testing.
	Events() *ServiceEvents
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store       store.Store
	attachments store.AttachmentFileStore
	logger      *slog.Logger
	opts        *options
	state       int32 // stateDisconnected, stateConnecting, or stateConnected
	plugins     *pluginRegistry
	otel        *otelInstrumentation
	sendSem     *semaphore.Weighted // Limits concurrent deliveries to prevent resource exhaustion
	eventBus    *event.Bus          // Event bus for publishing events
	events      *ServiceEvents      // Per-service event instances
}

// NewService creates a new mailboxer service.
// Call Connect() to establish connections to backends.
//
// Caching is NOT included in this library. If you need caching, wrap your
// store with a caching decorator. This keeps the library focused on
// messaging while letting you control caching strategy.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	// Initialize plugin registry
	plugins := newPluginRegistry(o.logger)
	for _, p := range o.plugins {
		plugins.register(p)
	}

	// Initialize OTel instrumentation
	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:       o.store,
		attachments: o.attachments,
		logger:      o.logger,
		opts:        o,
		plugins:     plugins,
		otel:        otelInstr,
		sendSem:     semaphore.NewWeighted(int64(o.maxConcurrentSends)),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// Use three-state to prevent Mailbox() operations from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		if atomic.LoadInt32(&s.state) == stateConnecting {
			return ErrAlreadyConnected // Connection in progress
		}
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	// Initialize event bus with appropriate transport
	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	// Initialize plugins
	if err := s.plugins.initAll(ctx); err != nil {
		s.eventBus.Close(ctx)
		s.store.Close(ctx)
		return fmt.Errorf("init plugins: %w", err)
	}

	success = true
	s.logger.Info("mailboxer service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
// Each service creates its own bus. Events are global singletons that get
// bound to the first bus that registers them.
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "mailboxer"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	// Create and register per-service events (unique per service instance).
	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	// Also register global events for backward compatibility.
	// Global events use "first registration wins" - subsequent calls are no-ops.
	if err := registerEvents(ctx, bus); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register events: %w", err)
	}

	return nil
}

// Close closes connections to storage backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight deliveries to complete (graceful shutdown).
	// After setting state to disconnected, no new deliveries can start
	// because checkAccess fails. We acquire all semaphore slots to wait
	// for existing operations to finish.
	s.logger.Info("waiting for in-flight operations to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.sendSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentSends)); err != nil {
		// Context cancelled or deadline exceeded - log but continue shutdown
		s.logger.Warn("timeout waiting for in-flight operations, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.sendSem.Release(int64(s.opts.maxConcurrentSends))
		s.logger.Info("all in-flight operations completed")
	}

	// Close plugins first (reverse order of init)
	if err := s.plugins.closeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close plugins: %w", err))
	}

	// Close event bus only if using a real transport.
	// For noop transport, the bus doesn't hold resources and closing would
	// break events for other services sharing the same global events.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Mailbox returns a mailbox for the given participant.
func (s *service) Mailbox(p Identity) Mailbox {
	return &participantMailbox{
		participant:   p,
		service:       s,
		validIdentity: isValidIdentity(p),
	}
}

// Conversation returns a handle for an existing conversation.
func (s *service) Conversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return nil, ErrNotConnected
	}
	if conversationID == "" {
		return nil, fmt.Errorf("%w: empty conversation ID", ErrInvalidID)
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return newConversation(conv, s), nil
}

// isValidIdentity checks if a participant identity is valid.
// Valid identities have a non-empty type and ID containing only safe
// characters. This prevents key injection and other security issues.
func isValidIdentity(p Identity) bool {
	if p.Type == "" || p.ID == "" {
		return false
	}
	return isValidIdentityPart(p.Type) && isValidIdentityPart(p.ID)
}

func isValidIdentityPart(s string) bool {
	// Allow alphanumeric, hyphen, underscore, period, at-sign
	// Disallow: *, :, /, \, spaces, and control characters
	for _, c := range s {
		if c == '*' || c == ':' || c == '/' || c == '\\' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c < 32 || c == 127 {
			return false
		}
	}
	return true
}

// CleanupResult contains the result of an expiry cleanup operation.
type CleanupResult struct {
	// DeletedCount is the number of payloads permanently removed.
	DeletedCount int64
	// Interrupted indicates if the cleanup was interrupted (e.g., context cancelled).
	Interrupted bool
}

// CleanupExpired permanently removes notifications whose expiry timestamp
// has passed, together with their receipts.
//
// This method should be called periodically by the application using its
// own scheduler (e.g., cron job, background worker). The library does not
// automatically run cleanup to give applications full control over
// scheduling.
//
// Example with a simple ticker:
//
//	go func() {
//	    ticker := time.NewTicker(1 * time.Hour)
//	    defer ticker.Stop()
//	    for range ticker.C {
//	        result, err := svc.CleanupExpired(ctx)
//	        if err != nil {
//	            log.Printf("expiry cleanup error: %v", err)
//	        } else if result.DeletedCount > 0 {
//	            log.Printf("removed %d expired notifications", result.DeletedCount)
//	        }
//	    }
//	}()
func (s *service) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return nil, ErrNotConnected
	}

	result := &CleanupResult{}
	if ctx.Err() != nil {
		result.Interrupted = true
		return result, ctx.Err()
	}

	cutoff := time.Now().UTC()
	deleted, err := s.store.DeleteExpiredPayloads(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("delete expired payloads: %w", err)
	}
	result.DeletedCount = deleted
	if deleted > 0 {
		s.logger.Debug("removed expired payloads", "count", deleted)
	}

	return result, nil
}
