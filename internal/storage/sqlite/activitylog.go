package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func scanActivityLogEntry(s scanner) (*types.ActivityLogEntry, error) {
	var e types.ActivityLogEntry
	var entityID string
	var fieldName, oldValue, newValue, comment sql.NullString
	if err := s.Scan(&e.ID, &e.EntityType, &entityID, &e.Action, &fieldName, &oldValue, &newValue, &e.UserID, &e.Timestamp, &comment); err != nil {
		return nil, err
	}
	id, err := types.ParseID(entityID)
	if err != nil {
		return nil, fmt.Errorf("parse entity_id: %w", err)
	}
	e.EntityID = id
	if fieldName.Valid {
		e.FieldName = &fieldName.String
	}
	if oldValue.Valid {
		e.OldValue = &oldValue.String
	}
	if newValue.Valid {
		e.NewValue = &newValue.String
	}
	if comment.Valid {
		e.Comment = &comment.String
	}
	return &e, nil
}

func (s *Store) ListActivityLog(ctx context.Context, entityType string, entityID types.ID, opts storage.ListOptions) ([]*types.ActivityLogEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, field_name, old_value, new_value, user_id, timestamp, comment
		FROM activity_log WHERE entity_type = ? AND entity_id = ?`
	args := []any{entityType, entityID}
	if opts.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, *opts.Since)
	}
	query += ` ORDER BY timestamp`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity log: %w", err)
	}
	defer rows.Close()

	var out []*types.ActivityLogEntry
	for rows.Next() {
		e, err := scanActivityLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendActivityLog writes one or more immutable rows in a single batch so a
// multi-field update produces a contiguous run of entries sharing a
// transaction-local commit order.
func (t *Tx) AppendActivityLog(ctx context.Context, entries ...*types.ActivityLogEntry) error {
	for _, e := range entries {
		if e.Timestamp == 0 {
			e.Timestamp = types.Now()
		}
		_, err := t.conn.ExecContext(ctx, `
			INSERT INTO activity_log (entity_type, entity_id, action, field_name, old_value, new_value, user_id, timestamp, comment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EntityType, e.EntityID, e.Action, e.FieldName, e.OldValue, e.NewValue, e.UserID, e.Timestamp, e.Comment,
		)
		if err != nil {
			return fmt.Errorf("append activity log: %w", err)
		}
	}
	return nil
}
