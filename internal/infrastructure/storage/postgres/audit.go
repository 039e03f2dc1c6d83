package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"stockledger/internal/core/actor"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// CompressionAlgo identifies how the changes payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one row of the operational audit trail (sys_audit).
// Distinct from the movement ledger: movements are domain state, audit
// entries are operational telemetry and may be pruned.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	ProductID         string          `db:"product_id"`
	Action            string          `db:"action"`
	ActorID           string          `db:"actor_id"`
	ActorEmail        string          `db:"actor_email"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes the operational audit trail. Large change payloads
// are zstd-compressed before insert.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates the audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// LogOperation records one engine operation. Best-effort: audit failures
// are logged and swallowed so they never fail the business operation.
func (s *AuditService) LogOperation(ctx context.Context, action, productID string, details map[string]any) {
	if err := s.log(ctx, action, productID, details); err != nil {
		logger.Error(ctx, "audit write failed",
			"action", action,
			"product_id", productID,
			"error", err,
		)
	}
}

func (s *AuditService) log(ctx context.Context, action, productID string, details map[string]any) error {
	entry := AuditEntry{
		ID:              id.New(),
		ProductID:       productID,
		Action:          action,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}
	if a := actor.FromContext(ctx); a != nil {
		entry.ActorID = a.Subject
		entry.ActorEmail = a.Email
	}

	if len(details) > 0 {
		changes, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
		if len(changes) > s.compressThreshold {
			entry.ChangesCompressed = s.encoder.EncodeAll(changes, nil)
			entry.CompressionAlgo = CompressionZstd
		} else {
			entry.Changes = changes
		}
	}

	sql := `
		INSERT INTO sys_audit (
			id, product_id, action, actor_id, actor_email,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.ProductID, entry.Action, entry.ActorID, entry.ActorEmail,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	return err
}

// History returns recent audit entries for a product, newest first.
func (s *AuditService) History(ctx context.Context, productID string, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, product_id, action, actor_id, actor_email,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.ProductID, &e.Action, &e.ActorID, &e.ActorEmail,
			&e.Changes, &e.ChangesCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = decompressed
			e.ChangesCompressed = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
