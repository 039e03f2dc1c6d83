package inventory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"stockledger/internal/core/apperror"
)

// MemoryStore is an in-process implementation of both repository ports.
// It backs tests and single-node evaluation runs; production uses postgres.
// All methods copy values in and out so callers never share memory with the
// store. Both ports declare a List method, so the store is exposed through
// the Records and Movements views.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]Record
	movements []Movement
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Records returns the RecordRepository view of the store.
func (s *MemoryStore) Records() RecordRepository {
	return memoryRecords{s}
}

// Movements returns the MovementRepository view of the store.
func (s *MemoryStore) Movements() MovementRepository {
	return memoryMovements{s}
}

type memoryRecords struct{ store *MemoryStore }

// Create inserts a record, failing on a duplicate product.
func (r memoryRecords) Create(_ context.Context, rec *Record) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ProductID]; exists {
		return apperror.NewDuplicate("inventory_record", "product_id", rec.ProductID)
	}
	s.records[rec.ProductID] = *rec
	return nil
}

// GetByProduct returns a copy of the record or NOT_FOUND.
func (r memoryRecords) GetByProduct(_ context.Context, productID string) (*Record, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[productID]
	if !ok {
		return nil, apperror.NewNotFound("inventory_record", productID)
	}
	return &rec, nil
}

// List returns records matching the filter, ordered by product id.
func (r memoryRecords) List(_ context.Context, filter RecordFilter) (RecordList, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Active != nil && rec.Active != *filter.Active {
			continue
		}
		if filter.LowStock && !rec.LowStock() {
			continue
		}
		if filter.Search != "" && !strings.Contains(rec.ProductID, filter.Search) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ProductID < matched[j].ProductID
	})

	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)

	return RecordList{
		Items:      matched,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// UpdateCAS writes rec only when the stored version matches expectedVersion.
func (r memoryRecords) UpdateCAS(_ context.Context, rec *Record, expectedVersion int) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ProductID]
	if !ok {
		return apperror.NewNotFound("inventory_record", rec.ProductID)
	}
	if current.Version != expectedVersion {
		return apperror.NewConcurrentModification("inventory_record", rec.ProductID)
	}
	s.records[rec.ProductID] = *rec
	return nil
}

type memoryMovements struct{ store *MemoryStore }

// Append adds one movement to the ledger.
func (m memoryMovements) Append(_ context.Context, mv *Movement) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movements = append(s.movements, *mv)
	return nil
}

// List returns movements matching the filter in ledger order.
func (m memoryMovements) List(_ context.Context, filter MovementFilter) ([]Movement, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Movement, 0, len(s.movements))
	for _, mv := range s.movements {
		if filter.ProductID != "" && mv.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != nil && mv.Type != *filter.Type {
			continue
		}
		if filter.From != nil && mv.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && mv.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, mv)
	}
	sortMovements(matched)
	return paginate(matched, filter.Offset, filter.Limit), nil
}

// FindByReference returns movements for the product and reference, restricted
// to types when given.
func (m memoryMovements) FindByReference(_ context.Context, productID, reference string, types ...MovementType) ([]Movement, error) {
	s := m.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Movement
	for _, mv := range s.movements {
		if mv.ProductID != productID || mv.Reference != reference {
			continue
		}
		if len(types) > 0 && !containsType(types, mv.Type) {
			continue
		}
		matched = append(matched, mv)
	}
	sortMovements(matched)
	return matched, nil
}

func sortMovements(ms []Movement) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return bytes.Compare(ms[i].ID[:], ms[j].ID[:]) < 0
	})
}

func containsType(types []MovementType, t MovementType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
