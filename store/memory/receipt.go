package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
)

// =============================================================================
// Receipt Operations
// =============================================================================

// GetReceipt retrieves a receipt by ID.
func (s *Store) GetReceipt(_ context.Context, id string) (*store.Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneReceipt(r), nil
}

// FindReceipts retrieves receipts matching the filters.
func (s *Store) FindReceipts(_ context.Context, filters []store.Filter, opts store.ListOptions) (*store.ReceiptList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]*store.Receipt, 0)
	for _, r := range s.receipts {
		if matchesFilters(r, filters) {
			matched = append(matched, cloneReceipt(r))
		}
	}
	s.mu.RUnlock()

	sortReceipts(matched, opts.SortBy, opts.SortOrder)

	total := int64(len(matched))
	matched = paginate(matched, opts)

	return &store.ReceiptList{
		Receipts: matched,
		Total:    total,
		HasMore:  opts.Limit > 0 && int64(opts.Offset+len(matched)) < total,
	}, nil
}

// CountReceipts returns the count of receipts matching the filters.
func (s *Store) CountReceipts(_ context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, r := range s.receipts {
		if matchesFilters(r, filters) {
			count++
		}
	}
	return count, nil
}

// UpdateReceipts applies the update to every matching receipt.
// Matching zero receipts is a successful no-op.
func (s *Store) UpdateReceipts(_ context.Context, filters []store.Filter, update store.ReceiptUpdate) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if update.IsZero() {
		return 0, store.ErrEmptyUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var updated int64
	for _, r := range s.receipts {
		if !matchesFilters(r, filters) {
			continue
		}
		changed := false
		if update.IsRead != nil && r.IsRead != *update.IsRead {
			r.IsRead = *update.IsRead
			changed = true
		}
		if update.Trashed != nil && r.Trashed != *update.Trashed {
			r.Trashed = *update.Trashed
			changed = true
		}
		if update.Deleted != nil && r.Deleted != *update.Deleted {
			r.Deleted = *update.Deleted
			changed = true
		}
		if update.MailboxType != nil && r.MailboxType != *update.MailboxType {
			r.MailboxType = *update.MailboxType
			changed = true
		}
		if changed {
			r.UpdatedAt = now
			updated++
		}
	}
	return updated, nil
}

// DeleteReceipts permanently removes every matching receipt.
func (s *Store) DeleteReceipts(_ context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, r := range s.receipts {
		if matchesFilters(r, filters) {
			delete(s.receipts, id)
			deleted++
		}
	}
	return deleted, nil
}

// =============================================================================
// Filter matching
// =============================================================================

func matchesFilters(r *store.Receipt, filters []store.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(r, f) {
			return false
		}
	}
	return true
}

func matchesFilter(r *store.Receipt, f store.Filter) bool {
	key := f.Key()
	value := f.Value()
	op := f.Operator()

	// The receiver key matches on the full identity.
	if key == "receiver" {
		id, ok := value.(store.Identity)
		if !ok {
			return false
		}
		switch op {
		case "eq", "=", "":
			return r.Receiver == id
		case "ne", "!=":
			return r.Receiver != id
		default:
			return false
		}
	}

	var fieldValue any
	switch key {
	case "id":
		fieldValue = r.ID
	case "notification_id":
		fieldValue = r.PayloadID
	case "receiver_type":
		fieldValue = r.Receiver.Type
	case "receiver_id":
		fieldValue = r.Receiver.ID
	case "conversation_id":
		fieldValue = r.ConversationID
	case "is_read":
		fieldValue = r.IsRead
	case "trashed":
		fieldValue = r.Trashed
	case "deleted":
		fieldValue = r.Deleted
	case "mailbox_type":
		fieldValue = string(r.MailboxType)
	case "created_at":
		fieldValue = r.CreatedAt
	case "updated_at":
		fieldValue = r.UpdatedAt
	default:
		return true // Unknown field, skip filter
	}

	switch op {
	case "eq", "=", "":
		return fieldValue == value
	case "ne", "!=":
		return fieldValue != value
	case "lt", "<":
		return compareValues(fieldValue, value) < 0
	case "lte", "<=":
		return compareValues(fieldValue, value) <= 0
	case "gt", ">":
		return compareValues(fieldValue, value) > 0
	case "gte", ">=":
		return compareValues(fieldValue, value) >= 0
	case "exists":
		exists, _ := value.(bool)
		isEmpty := fieldValue == "" || fieldValue == nil
		return exists != isEmpty
	case "in":
		return valueInSet(fieldValue, value)
	case "nin":
		return !valueInSet(fieldValue, value)
	default:
		return true
	}
}

// valueInSet checks if a scalar value is in a set (slice) of values.
func valueInSet(fieldValue any, set any) bool {
	switch s := set.(type) {
	case []string:
		fv, ok := fieldValue.(string)
		if !ok {
			return false
		}
		for _, v := range s {
			if v == fv {
				return true
			}
		}
	case []any:
		for _, v := range s {
			if v == fieldValue {
				return true
			}
		}
	}
	return false
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			if av < bv {
				return -1
			} else if av > bv {
				return 1
			}
			return 0
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			if av.Before(bv) {
				return -1
			} else if av.After(bv) {
				return 1
			}
			return 0
		}
	}
	return 0
}

func sortReceipts(receipts []*store.Receipt, sortBy string, order store.SortOrder) {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if order == 0 {
		order = store.SortDesc
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "updated_at":
			if receipts[i].UpdatedAt.Equal(receipts[j].UpdatedAt) {
				less = receipts[i].ID < receipts[j].ID
			} else {
				less = receipts[i].UpdatedAt.Before(receipts[j].UpdatedAt)
			}
		default: // created_at
			if receipts[i].CreatedAt.Equal(receipts[j].CreatedAt) {
				less = receipts[i].ID < receipts[j].ID
			} else {
				less = receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
			}
		}
		if order == store.SortDesc {
			return !less
		}
		return less
	})
}

func paginate[T any](items []T, opts store.ListOptions) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
