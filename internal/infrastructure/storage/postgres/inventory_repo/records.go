// Package inventory_repo provides the PostgreSQL implementation of the
// inventory repository ports.
package inventory_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/postgres"
)

const recordsTable = "inventory_records"

const pgUniqueViolation = "23505"

// RecordRepo implements inventory.RecordRepository.
type RecordRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRecordRepo creates the record repository.
func NewRecordRepo(txManager *postgres.TxManager) *RecordRepo {
	return &RecordRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var recordColumns = []string{
	"id", "product_id", "quantity_on_hand", "quantity_reserved",
	"version", "active", "location", "reorder_level",
	"created_at", "updated_at",
}

// Create inserts a new record. A unique index on product_id turns races
// between concurrent creators into DUPLICATE_ENTRY.
func (r *RecordRepo) Create(ctx context.Context, rec *inventory.Record) error {
	q := r.builder.Insert(recordsTable).
		Columns(recordColumns...).
		Values(
			rec.ID, rec.ProductID, rec.QuantityOnHand, rec.QuantityReserved,
			rec.Version, rec.Active, rec.Location, rec.ReorderLevel,
			rec.CreatedAt, rec.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.NewDuplicate("inventory_record", "product_id", rec.ProductID)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetByProduct returns the record or NOT_FOUND.
func (r *RecordRepo) GetByProduct(ctx context.Context, productID string) (*inventory.Record, error) {
	q := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec inventory.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("inventory_record", productID)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// List returns records matching the filter with a total count.
func (r *RecordRepo) List(ctx context.Context, filter inventory.RecordFilter) (inventory.RecordList, error) {
	result := inventory.RecordList{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	base := r.builder.Select().From(recordsTable)
	base = applyRecordFilter(base, filter)

	countSQL, countArgs, err := base.Column("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count records: %w", err)
	}

	q := r.builder.Select(recordColumns...).From(recordsTable)
	q = applyRecordFilter(q, filter).OrderBy("product_id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("select records: %w", err)
	}
	return result, nil
}

func applyRecordFilter(q squirrel.SelectBuilder, filter inventory.RecordFilter) squirrel.SelectBuilder {
	if filter.Active != nil {
		q = q.Where(squirrel.Eq{"active": *filter.Active})
	}
	if filter.LowStock {
		q = q.Where("reorder_level > 0 AND quantity_on_hand - quantity_reserved <= reorder_level")
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"product_id": "%" + filter.Search + "%"})
	}
	return q
}

// UpdateCAS writes rec only when the stored version still equals
// expectedVersion. Zero rows affected means a concurrent writer won.
func (r *RecordRepo) UpdateCAS(ctx context.Context, rec *inventory.Record, expectedVersion int) error {
	q := r.builder.Update(recordsTable).
		Set("quantity_on_hand", rec.QuantityOnHand).
		Set("quantity_reserved", rec.QuantityReserved).
		Set("version", rec.Version).
		Set("active", rec.Active).
		Set("location", rec.Location).
		Set("reorder_level", rec.ReorderLevel).
		Set("updated_at", rec.UpdatedAt).
		Where(squirrel.Eq{
			"product_id": rec.ProductID,
			"version":    expectedVersion,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("inventory_record", rec.ProductID)
	}
	return nil
}

var _ inventory.RecordRepository = (*RecordRepo)(nil)
