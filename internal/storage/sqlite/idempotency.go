package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/types"
)

func (s *Store) LookupIdempotency(ctx context.Context, messageID string) (*types.IdempotencyRecord, error) {
	var rec types.IdempotencyRecord
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, operation, serialized_result, created_at FROM idempotency_records WHERE message_id = ?`, messageID)
	err := row.Scan(&rec.MessageID, &rec.Operation, &rec.SerializedResult, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency record: %w", err)
	}
	return &rec, nil
}

// SweepIdempotency deletes records older than the retention horizon. It is
// called opportunistically by a background ticker, not from within a
// command transaction.
func (s *Store) SweepIdempotency(ctx context.Context, olderThan types.Timestamp) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency records: %w", err)
	}
	return res.RowsAffected()
}

func (t *Tx) RecordIdempotency(ctx context.Context, rec *types.IdempotencyRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = types.Now()
	}
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO idempotency_records (message_id, operation, serialized_result, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.MessageID, rec.Operation, rec.SerializedResult, rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return types.NewError(types.KindIdempotencyMismatch, "message_id %s already recorded", rec.MessageID)
	}
	if err != nil {
		return fmt.Errorf("record idempotency: %w", err)
	}
	return nil
}
