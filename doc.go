// Package mailboxer provides a multi-party messaging and notification
// library for Go.
//
// Any domain entity can act as a participant (identified by a type/id
// pair, e.g. user:42) and exchange threaded messages or receive standalone
// notifications. Every delivery materializes one receipt per recipient;
// receipts carry all mutable per-participant state (read, trashed,
// deleted, mailbox placement) while message content stays immutable and
// shared. All functionality is exposed via interfaces, with pluggable
// storage backends (MongoDB, PostgreSQL, in-memory).
//
// # Basic Usage
//
//	// Create in-memory store for testing
//	st := memory.New()
//
//	// Create the service
//	svc, err := mailboxer.NewService(
//	    mailboxer.WithStore(st),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect initializes indexes/schema
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	// Get a mailbox for a participant
//	alice := mailboxer.NewIdentity("user", "alice")
//	mb := svc.Mailbox(alice)
//
//	// Start a conversation
//	receipt, err := mb.SendMessage(ctx, mailboxer.SendRequest{
//	    Recipients: []mailboxer.Identity{mailboxer.NewIdentity("user", "bob")},
//	    Subject:    "Hello",
//	    Body:       "World",
//	})
//
// # Mailbox Operations
//
//   - SendMessage/ReplyToConversation/ReplyToReceipt: deliver messages
//   - Receipt: retrieve one of the participant's receipts by ID
//   - Inbox/Sentbox/Trash/Notifications: paginated receipt listings
//   - Conversations and scoped variants: thread listings
//   - Stream: iterator-based streaming with filters
//   - MarkReceiptRead, TrashReceipt, DeleteReceipt and friends:
//     owner-scoped state transitions
//   - EmptyTrash: permanently purge trashed receipts
//
// Standalone notifications are sent service-wide via Service.Notify.
//
// # Storage Backends
//
// The store package provides implementations for:
//   - MongoDB (store/mongo) - accepts *mongo.Client
//   - PostgreSQL (store/postgres) - accepts *sql.DB
//   - In-memory (store/memory) - for testing
//
// # Events
//
// Mailboxer provides typed events for delivery lifecycle notifications.
// Events use the github.com/rbaliyan/event/v3 library which supports
// multiple transports (Redis Streams, NATS, Kafka, in-memory channel).
//
// To enable events, pass WithRedisClient or WithEventTransport when creating the service:
//
//	svc, err := mailboxer.NewService(
//	    mailboxer.WithStore(st),
//	    mailboxer.WithRedisClient(redisClient),
//	)
//
// Events are automatically registered during Connect(). Access per-service
// events via the Events() method:
//
//	events := svc.Events()
//	events.MessageDelivered.Subscribe(ctx, handler)
//	events.ReceiptRead.Subscribe(ctx, handler)
//	events.ConversationDestroyed.Subscribe(ctx, handler)
//
// Available events:
//   - MessageDelivered - when a conversation message fans out
//   - NotificationDelivered - when a standalone notification fans out
//   - ReceiptRead - when a receipt transitions to read
//   - ConversationDestroyed - when the last deleted receipt reaps a conversation
package mailboxer
