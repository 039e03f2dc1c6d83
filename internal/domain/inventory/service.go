package inventory

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/actor"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

// RecordCache is an optional read-through cache for single-record reads.
// Only committed snapshots are stored, so cached reads can never expose a
// state violating the quantity invariant.
type RecordCache interface {
	Get(ctx context.Context, productID string) (*Record, bool)
	Set(ctx context.Context, rec *Record)
	Invalidate(ctx context.Context, productID string)
}

// OperationAuditor records mutating engine calls for operational audit.
// Best-effort: failures are logged, never propagated.
type OperationAuditor interface {
	LogOperation(ctx context.Context, action, productID string, details map[string]any)
}

// Config tunes engine behavior.
type Config struct {
	// StrictReservations makes a repeated reservation reference fail with
	// DUPLICATE_RESERVATION instead of replaying the prior result.
	StrictReservations bool
}

// Service is the stock operations engine. Every mutation runs as one guarded
// unit: read record, validate, compute next state, write record and append
// the movement in a single transaction. Invariant violations are rejected,
// never clamped.
type Service struct {
	records   RecordRepository
	movements MovementRepository
	guard     *Guard
	tx        tx.Manager
	cache     RecordCache
	audit     OperationAuditor
	cfg       Config
	now       func() time.Time
}

// NewService creates the engine. cache and audit may be nil.
func NewService(
	records RecordRepository,
	movements MovementRepository,
	guard *Guard,
	txManager tx.Manager,
	cfg Config,
) *Service {
	return &Service{
		records:   records,
		movements: movements,
		guard:     guard,
		tx:        txManager,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithCache attaches a record cache.
func (s *Service) WithCache(cache RecordCache) *Service {
	s.cache = cache
	return s
}

// WithAuditor attaches an operation auditor.
func (s *Service) WithAuditor(audit OperationAuditor) *Service {
	s.audit = audit
	return s
}

// OperationResult is the outcome of a quantity-changing operation.
type OperationResult struct {
	Record   *Record   `json:"record"`
	Movement *Movement `json:"movement,omitempty"`

	// Replayed marks an idempotent replay: Movement is the prior ledger
	// entry and no new write happened.
	Replayed bool `json:"replayed,omitempty"`
}

// CreateRecordInput creates inventory tracking for a product.
type CreateRecordInput struct {
	ProductID     string
	InitialOnHand int64
	Location      *string
	ReorderLevel  int64
}

// CreateRecord starts inventory tracking for a product. One record per
// product; a duplicate create fails with DUPLICATE_ENTRY. Non-zero initial
// stock is written to the ledger so replay reproduces the state.
func (s *Service) CreateRecord(ctx context.Context, in CreateRecordInput) (*OperationResult, error) {
	if err := ValidateProductID(in.ProductID); err != nil {
		return nil, err
	}
	if in.InitialOnHand < 0 {
		return nil, apperror.NewValidation("initialOnHand must not be negative")
	}
	if in.ReorderLevel < 0 {
		return nil, apperror.NewValidation("reorderLevel must not be negative")
	}

	now := s.now()
	rec := &Record{
		ID:             id.New(),
		ProductID:      in.ProductID,
		QuantityOnHand: in.InitialOnHand,
		Version:        1,
		Active:         true,
		Location:       in.Location,
		ReorderLevel:   in.ReorderLevel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var mv *Movement
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, rec); err != nil {
			return err
		}
		if in.InitialOnHand > 0 {
			reason := "initial stock"
			mv = &Movement{
				ID:                id.New(),
				ProductID:         rec.ProductID,
				Type:              MovementAdjustmentIn,
				Quantity:          in.InitialOnHand,
				Reason:            &reason,
				ResultingOnHand:   rec.QuantityOnHand,
				ResultingReserved: rec.QuantityReserved,
				Actor:             actor.Identity(ctx),
				CreatedAt:         now,
			}
			if err := s.movements.Append(ctx, mv); err != nil {
				return fmt.Errorf("append initial movement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "inventory record created",
		"product_id", rec.ProductID,
		"initial_on_hand", in.InitialOnHand,
	)
	s.logAudit(ctx, "create", rec.ProductID, map[string]any{"initial_on_hand": in.InitialOnHand})

	return &OperationResult{Record: rec, Movement: mv}, nil
}

// UpdateMetadataInput updates descriptive fields only; quantities are
// untouchable through this path.
type UpdateMetadataInput struct {
	Location     *string
	ReorderLevel *int64
}

// UpdateMetadata updates location and reorder level under the guard.
func (s *Service) UpdateMetadata(ctx context.Context, productID string, in UpdateMetadataInput) (*Record, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}
	if in.Location == nil && in.ReorderLevel == nil {
		return nil, apperror.NewValidation("nothing to update")
	}
	if in.ReorderLevel != nil && *in.ReorderLevel < 0 {
		return nil, apperror.NewValidation("reorderLevel must not be negative")
	}

	res, err := s.mutate(ctx, productID, func(ctx context.Context, rec *Record) (*mutation, error) {
		if in.Location != nil {
			rec.Location = in.Location
		}
		if in.ReorderLevel != nil {
			rec.ReorderLevel = *in.ReorderLevel
		}
		return &mutation{}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "update_metadata", productID, nil)
	return res.Record, nil
}

// Deactivate marks the record inactive. Rejected while stock is reserved;
// the record is never hard-deleted because movement history references it.
func (s *Service) Deactivate(ctx context.Context, productID string) (*Record, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}

	res, err := s.mutate(ctx, productID, func(ctx context.Context, rec *Record) (*mutation, error) {
		if rec.QuantityReserved > 0 {
			return nil, apperror.NewConflict("cannot deactivate: stock is reserved").
				WithDetail("product_id", productID).
				WithDetail("quantity_reserved", rec.QuantityReserved)
		}
		rec.Active = false
		return &mutation{}, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "inventory record deactivated", "product_id", productID)
	s.logAudit(ctx, "deactivate", productID, nil)
	return res.Record, nil
}

// AdjustInput changes on-hand quantity by a signed delta.
type AdjustInput struct {
	ProductID string
	Delta     int64
	Reason    string

	// Reference is an optional caller idempotency/correlation key. Repeated
	// adjustments with the same reason legitimately apply multiple times;
	// exactly-once is the caller's concern.
	Reference string
}

// Adjust applies a manual stock correction. Fails with INSUFFICIENT_STOCK
// when the result would be negative or fall below the reserved quantity.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (*OperationResult, error) {
	if err := ValidateProductID(in.ProductID); err != nil {
		return nil, err
	}
	if in.Delta == 0 {
		return nil, apperror.NewValidation("delta must not be zero")
	}
	if in.Reason == "" {
		return nil, apperror.NewValidation("reason is required")
	}

	res, err := s.mutate(ctx, in.ProductID, func(ctx context.Context, rec *Record) (*mutation, error) {
		if !rec.Active {
			return nil, apperror.NewConflict("inventory record is inactive").
				WithDetail("product_id", in.ProductID)
		}

		newOnHand := rec.QuantityOnHand + in.Delta
		if newOnHand < 0 || newOnHand < rec.QuantityReserved {
			return nil, apperror.NewInsufficientStock(in.ProductID, -in.Delta, rec.Available())
		}
		rec.QuantityOnHand = newOnHand

		mvType := MovementAdjustmentIn
		quantity := in.Delta
		if in.Delta < 0 {
			mvType = MovementAdjustmentOut
			quantity = -in.Delta
		}
		reason := in.Reason
		return &mutation{movement: &Movement{
			Type:      mvType,
			Quantity:  quantity,
			Reference: in.Reference,
			Reason:    &reason,
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock adjusted",
		"product_id", in.ProductID,
		"delta", in.Delta,
		"on_hand", res.Record.QuantityOnHand,
	)
	s.logAudit(ctx, "adjust", in.ProductID, map[string]any{"delta": in.Delta, "reason": in.Reason})
	return res, nil
}

// ReserveInput places a soft hold against future consumption.
type ReserveInput struct {
	ProductID string
	Quantity  int64

	// Reference correlates the reserve with its eventual release and is the
	// idempotency key for retried callers.
	Reference string
}

// Reserve holds quantity against available stock, all-or-nothing. A repeated
// reference replays the prior result without re-applying (strict mode turns
// the replay into DUPLICATE_RESERVATION instead).
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*OperationResult, error) {
	if err := ValidateProductID(in.ProductID); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if in.Reference == "" {
		return nil, apperror.NewValidation("reservationRef is required")
	}

	res, err := s.mutate(ctx, in.ProductID, func(ctx context.Context, rec *Record) (*mutation, error) {
		prior, err := s.movements.FindByReference(ctx, in.ProductID, in.Reference, MovementReserve)
		if err != nil {
			return nil, fmt.Errorf("lookup reservation: %w", err)
		}
		if len(prior) > 0 {
			if s.cfg.StrictReservations {
				return nil, apperror.NewDuplicateReservation(in.ProductID, in.Reference)
			}
			return &mutation{replay: &prior[0]}, nil
		}

		if !rec.Active {
			return nil, apperror.NewConflict("inventory record is inactive").
				WithDetail("product_id", in.ProductID)
		}
		if in.Quantity > rec.Available() {
			return nil, apperror.NewInsufficientStock(in.ProductID, in.Quantity, rec.Available())
		}
		rec.QuantityReserved += in.Quantity

		return &mutation{movement: &Movement{
			Type:      MovementReserve,
			Quantity:  in.Quantity,
			Reference: in.Reference,
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	if res.Replayed {
		logger.Info(ctx, "reservation replayed",
			"product_id", in.ProductID,
			"reference", in.Reference,
		)
	} else {
		logger.Info(ctx, "stock reserved",
			"product_id", in.ProductID,
			"quantity", in.Quantity,
			"reference", in.Reference,
			"available", res.Record.Available(),
		)
		s.logAudit(ctx, "reserve", in.ProductID, map[string]any{"quantity": in.Quantity, "reference": in.Reference})
	}
	return res, nil
}

// ReleaseInput resolves a reservation by its reference.
type ReleaseInput struct {
	ProductID string
	Reference string
	Mode      ReleaseMode
}

// Release resolves a prior reservation. CANCEL returns the hold to
// availability; CONSUME removes it from stock entirely. Releasing an
// already-released reservation replays the prior result without
// double-crediting; an unknown reference fails with NOT_FOUND; a replay
// with a different mode than recorded fails with CONFLICT.
func (s *Service) Release(ctx context.Context, in ReleaseInput) (*OperationResult, error) {
	if err := ValidateProductID(in.ProductID); err != nil {
		return nil, err
	}
	if in.Reference == "" {
		return nil, apperror.NewValidation("reservationRef is required")
	}
	if !in.Mode.Valid() {
		return nil, apperror.NewValidation("mode must be CANCEL or CONSUME")
	}

	res, err := s.mutate(ctx, in.ProductID, func(ctx context.Context, rec *Record) (*mutation, error) {
		reserves, err := s.movements.FindByReference(ctx, in.ProductID, in.Reference, MovementReserve)
		if err != nil {
			return nil, fmt.Errorf("lookup reservation: %w", err)
		}
		if len(reserves) == 0 {
			return nil, apperror.NewNotFound("reservation", in.Reference)
		}

		releases, err := s.movements.FindByReference(ctx, in.ProductID, in.Reference,
			MovementReleaseCancel, MovementReleaseConsume)
		if err != nil {
			return nil, fmt.Errorf("lookup prior release: %w", err)
		}
		if len(releases) > 0 {
			prior := releases[0]
			if prior.Type != in.Mode.MovementType() {
				return nil, apperror.NewConflict("reservation already released with a different mode").
					WithDetail("reference", in.Reference).
					WithDetail("released_as", prior.Type)
			}
			return &mutation{replay: &prior}, nil
		}

		quantity := reserves[0].Quantity
		rec.QuantityReserved -= quantity
		if in.Mode == ReleaseConsume {
			rec.QuantityOnHand -= quantity
		}
		if err := rec.CheckInvariant(); err != nil {
			return nil, err
		}

		return &mutation{movement: &Movement{
			Type:      in.Mode.MovementType(),
			Quantity:  quantity,
			Reference: in.Reference,
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	if res.Replayed {
		logger.Info(ctx, "release replayed",
			"product_id", in.ProductID,
			"reference", in.Reference,
		)
	} else {
		logger.Info(ctx, "reservation released",
			"product_id", in.ProductID,
			"reference", in.Reference,
			"mode", in.Mode,
			"on_hand", res.Record.QuantityOnHand,
		)
		s.logAudit(ctx, "release", in.ProductID, map[string]any{"reference": in.Reference, "mode": in.Mode})
	}
	return res, nil
}

// mutation is the outcome of one guarded read-modify-write attempt.
type mutation struct {
	// movement, when set, is appended to the ledger after the record write
	// (same transaction). The engine fills id, snapshots, actor and time.
	movement *Movement

	// replay, when set, short-circuits the write: the operation already
	// happened and this prior ledger entry is returned as-is.
	replay *Movement
}

// mutate runs op as one guarded read-modify-write unit. op receives the
// freshly read record, mutates it to the next state and describes the ledger
// entry; mutate writes both atomically. On a version conflict the guard
// re-runs the whole body against a fresh read.
func (s *Service) mutate(ctx context.Context, productID string, op func(ctx context.Context, rec *Record) (*mutation, error)) (*OperationResult, error) {
	var result *OperationResult

	err := s.guard.Do(ctx, productID, func(ctx context.Context) error {
		return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			rec, err := s.records.GetByProduct(ctx, productID)
			if err != nil {
				return err
			}

			mut, err := op(ctx, rec)
			if err != nil {
				return err
			}

			if mut.replay != nil {
				result = &OperationResult{Record: rec, Movement: mut.replay, Replayed: true}
				return nil
			}

			if err := rec.CheckInvariant(); err != nil {
				return err
			}

			expected := rec.Version
			rec.Touch(s.now())
			if err := s.records.UpdateCAS(ctx, rec, expected); err != nil {
				return err
			}

			if mut.movement == nil {
				result = &OperationResult{Record: rec}
				return nil
			}

			mv := mut.movement
			mv.ID = id.New()
			mv.ProductID = rec.ProductID
			mv.ResultingOnHand = rec.QuantityOnHand
			mv.ResultingReserved = rec.QuantityReserved
			mv.Actor = actor.Identity(ctx)
			mv.CreatedAt = rec.UpdatedAt
			if err := s.movements.Append(ctx, mv); err != nil {
				return fmt.Errorf("append movement: %w", err)
			}

			result = &OperationResult{Record: rec, Movement: mv}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, productID)
	return result, nil
}

// --- Query facade ---

// GetRecord returns one record, cache-aside when a cache is attached.
func (s *Service) GetRecord(ctx context.Context, productID string) (*Record, error) {
	if err := ValidateProductID(productID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if rec, ok := s.cache.Get(ctx, productID); ok {
			return rec, nil
		}
	}

	rec, err := s.records.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, rec)
	}
	return rec, nil
}

// ListRecords returns records matching the filter.
func (s *Service) ListRecords(ctx context.Context, filter RecordFilter) (RecordList, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.records.List(ctx, filter)
}

// ListMovements returns ledger entries matching the filter, oldest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID != "" {
		if err := ValidateProductID(filter.ProductID); err != nil {
			return nil, err
		}
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, apperror.NewValidation("unknown movement type").
			WithDetail("type", string(*filter.Type))
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.movements.List(ctx, filter)
}

// ReconcileReport compares record state against a full ledger replay.
type ReconcileReport struct {
	ProductID      string `json:"productId"`
	RecordOnHand   int64  `json:"recordOnHand"`
	RecordReserved int64  `json:"recordReserved"`
	LedgerOnHand   int64  `json:"ledgerOnHand"`
	LedgerReserved int64  `json:"ledgerReserved"`
	MovementCount  int    `json:"movementCount"`
	Consistent     bool   `json:"consistent"`
}

// Reconcile replays the product's full movement history and reports whether
// it reproduces the record exactly.
func (s *Service) Reconcile(ctx context.Context, productID string) (*ReconcileReport, error) {
	rec, err := s.GetRecord(ctx, productID)
	if err != nil {
		return nil, err
	}

	const pageSize = 500
	var (
		onHand, reserved int64
		count            int
		offset           int
	)
	for {
		page, err := s.movements.List(ctx, MovementFilter{
			ProductID: productID,
			Limit:     pageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list movements: %w", err)
		}
		dh, dr := Replay(page)
		onHand += dh
		reserved += dr
		count += len(page)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	report := &ReconcileReport{
		ProductID:      productID,
		RecordOnHand:   rec.QuantityOnHand,
		RecordReserved: rec.QuantityReserved,
		LedgerOnHand:   onHand,
		LedgerReserved: reserved,
		MovementCount:  count,
		Consistent:     onHand == rec.QuantityOnHand && reserved == rec.QuantityReserved,
	}
	if !report.Consistent {
		logger.Warn(ctx, "ledger drift detected",
			"product_id", productID,
			"record_on_hand", rec.QuantityOnHand,
			"ledger_on_hand", onHand,
			"record_reserved", rec.QuantityReserved,
			"ledger_reserved", reserved,
		)
	}
	return report, nil
}

// --- helpers ---

func (s *Service) invalidateCache(ctx context.Context, productID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, productID)
	}
}

func (s *Service) logAudit(ctx context.Context, action, productID string, details map[string]any) {
	if s.audit != nil {
		s.audit.LogOperation(ctx, action, productID, details)
	}
}
