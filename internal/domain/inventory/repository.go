package inventory

import (
	"context"
	"time"
)

// RecordRepository is the durable store for per-product quantity state.
// Implementations must make Create fail on duplicate product and UpdateCAS
// fail when the stored version differs from the expected one; the engine's
// correctness depends on both.
type RecordRepository interface {
	// Create inserts a new record. Returns DUPLICATE_ENTRY when a record
	// for the product already exists.
	Create(ctx context.Context, rec *Record) error

	// GetByProduct returns the record or NOT_FOUND.
	GetByProduct(ctx context.Context, productID string) (*Record, error)

	// List returns records matching the filter with a total count.
	List(ctx context.Context, filter RecordFilter) (RecordList, error)

	// UpdateCAS writes rec only if the stored version equals expectedVersion,
	// returning CONCURRENT_MODIFICATION otherwise. rec carries the already
	// incremented version.
	UpdateCAS(ctx context.Context, rec *Record, expectedVersion int) error
}

// MovementRepository is the append-only movement ledger.
type MovementRepository interface {
	// Append inserts one movement. Movements are immutable once written.
	Append(ctx context.Context, m *Movement) error

	// List returns movements matching the filter, ordered by created_at
	// ascending (id as tie-breaker) so pages are restartable.
	List(ctx context.Context, filter MovementFilter) ([]Movement, error)

	// FindByReference returns movements for the product with the given
	// reference, restricted to types when provided. Used as the idempotency
	// lookup: the ledger itself is the deduplication structure.
	FindByReference(ctx context.Context, productID, reference string, types ...MovementType) ([]Movement, error)
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	// Active filters by active status when set.
	Active *bool

	// LowStock keeps only records at or below their reorder level.
	LowStock bool

	// Search matches productId by substring.
	Search string

	Limit  int
	Offset int
}

// RecordList is a paginated record listing.
type RecordList struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"totalCount"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

// MovementFilter narrows ledger queries.
type MovementFilter struct {
	ProductID string
	Type      *MovementType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
