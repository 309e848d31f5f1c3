package mailboxer

import (
	"context"
	"errors"

	"github.com/full-stack-biz/mailboxer/store"
)

// ErrIteratorOutOfBounds is returned when Receipt() is called without a successful Next().
var ErrIteratorOutOfBounds = errors.New("mailboxer: iterator out of bounds - call Next() first")

// ReceiptIterator provides streaming access to a participant's receipts.
// Use Next() to advance, Receipt() to get the current receipt.
//
// Use it over the paginated listings when processing large result sets one
// receipt at a time: exports, migrations, digest jobs. Paginated listings
// (Inbox, Sentbox, Trash) remain the right tool for UIs that need totals
// and bulk operations.
//
// Ownership: the iterator holds no resources requiring cleanup. There is no
// Close method, simply stop calling Next() when done.
//
// Thread safety: a ReceiptIterator is NOT safe for concurrent use. Create
// one iterator per goroutine.
type ReceiptIterator interface {
	// Next advances to the next receipt.
	// Returns (true, nil) if a receipt is available.
	// Returns (false, nil) when iteration is done.
	// Returns (false, error) if an error occurred.
	Next(ctx context.Context) (bool, error)

	// Receipt returns the current receipt with full mutation capabilities.
	// Returns ErrIteratorOutOfBounds if called before a successful Next().
	Receipt() (*Receipt, error)
}

// StreamOptions configures streaming behavior.
type StreamOptions struct {
	// BatchSize is the number of receipts fetched per batch.
	// Larger batches reduce round-trips but use more memory.
	// Default: 100
	BatchSize int
}

// receiptIterator fetches receipts in offset-advancing batches, sorted by
// creation time ascending so receipts delivered mid-iteration land past the
// cursor instead of shifting earlier pages.
type receiptIterator struct {
	mailbox   *participantMailbox
	filters   []store.Filter
	opts      store.ListOptions
	batchSize int
	batch     []*store.Receipt
	batchIdx  int
	done      bool
	fetched   bool
}

func newReceiptIterator(m *participantMailbox, filters []store.Filter, streamOpts StreamOptions) *receiptIterator {
	batchSize := streamOpts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &receiptIterator{
		mailbox:   m,
		filters:   filters,
		batchSize: batchSize,
		opts: store.ListOptions{
			Limit:     batchSize,
			SortBy:    "created_at",
			SortOrder: store.SortAsc,
		},
	}
}

func (it *receiptIterator) Next(ctx context.Context) (bool, error) {
	if it.done {
		return false, nil
	}

	// Verify the service is still connected on each advance.
	if err := it.mailbox.checkAccess(); err != nil {
		it.done = true
		return false, err
	}

	if it.batchIdx >= len(it.batch) {
		if it.fetched && len(it.batch) < it.batchSize {
			it.done = true
			return false, nil
		}

		list, err := it.mailbox.service.store.FindReceipts(ctx, it.filters, it.opts)
		if err != nil {
			it.done = true
			return false, err
		}

		it.batch = list.Receipts
		it.batchIdx = 0
		it.fetched = true
		it.opts.Offset += len(it.batch)

		if len(it.batch) == 0 {
			it.done = true
			return false, nil
		}
	}

	it.batchIdx++
	return true, nil
}

func (it *receiptIterator) Receipt() (*Receipt, error) {
	if it.batchIdx <= 0 || it.batchIdx > len(it.batch) {
		return nil, ErrIteratorOutOfBounds
	}
	return newReceipt(it.batch[it.batchIdx-1], it.mailbox), nil
}

// Stream returns an iterator over the participant's non-deleted receipts.
// Additional filters narrow results, for example store.InMailbox or
// store.NotificationReceipts. The owner filter and not-deleted filter are
// always prepended.
func (m *participantMailbox) Stream(ctx context.Context, filters []store.Filter, opts StreamOptions) (ReceiptIterator, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	base := []store.Filter{
		m.ownerFilter(),
		store.NotDeleted(),
	}
	return newReceiptIterator(m, append(base, filters...), opts), nil
}
