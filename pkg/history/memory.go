package history

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// MemoryStore is an in-process Store. Useful for tests and for clients
// that do not persist call history across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save inserts or replaces the record for rec.SessionID.
func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, found := lo.FindIndexOf(s.records, func(r Record) bool {
		return r.SessionID == rec.SessionID
	})
	if found {
		s.records[idx] = rec
		return nil
	}
	s.records = append(s.records, rec)
	return nil
}

// UpdateQuality sets the rating on an existing record.
func (s *MemoryStore) UpdateQuality(ctx context.Context, sessionID string, rating int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateRating(rating); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, found := lo.FindIndexOf(s.records, func(r Record) bool {
		return r.SessionID == sessionID
	})
	if !found {
		return ErrNotFound
	}
	s.records[idx].Quality = rating
	return nil
}

// List returns records most recent first.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	sorted := append([]Record(nil), s.records...)
	s.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	if offset < 0 {
		offset = 0
	}
	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return lo.Slice(sorted, offset, end), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Verify MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
