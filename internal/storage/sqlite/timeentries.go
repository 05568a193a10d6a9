package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

const timeEntryColumns = `id, work_item_id, user_id, started_at, ended_at, duration_seconds, description,
	version, created_at, updated_at, created_by, updated_by, deleted_at`

func scanTimeEntry(s scanner) (*types.TimeEntry, error) {
	var t types.TimeEntry
	var endedAt, duration sql.NullInt64
	var description sql.NullString
	var deletedAt sql.NullInt64
	err := s.Scan(
		&t.ID, &t.WorkItemID, &t.UserID, &t.StartedAt, &endedAt, &duration, &description,
		&t.Version, &t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		ts := types.Timestamp(endedAt.Int64)
		t.EndedAt = &ts
	}
	if duration.Valid {
		t.DurationSeconds = &duration.Int64
	}
	if description.Valid {
		t.Description = &description.String
	}
	if deletedAt.Valid {
		ts := types.Timestamp(deletedAt.Int64)
		t.DeletedAt = &ts
	}
	return &t, nil
}

func (s *Store) GetTimeEntry(ctx context.Context, id types.ID) (*types.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ? AND deleted_at IS NULL`, id)
	te, err := scanTimeEntry(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("time entry %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get time entry: %w", err)
	}
	return te, nil
}

func (s *Store) ListTimeEntriesByWorkItem(ctx context.Context, workItemID types.ID, opts storage.ListOptions) ([]*types.TimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE work_item_id = ? AND deleted_at IS NULL`
	args := []any{workItemID}
	if opts.Since != nil {
		query += ` AND updated_at >= ?`
		args = append(args, *opts.Since)
	}
	query += ` ORDER BY started_at`
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
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	defer rows.Close()

	var out []*types.TimeEntry
	for rows.Next() {
		te, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

func (s *Store) GetRunningTimeEntry(ctx context.Context, userID string) (*types.TimeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE user_id = ? AND ended_at IS NULL AND deleted_at IS NULL`, userID)
	te, err := scanTimeEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get running time entry: %w", err)
	}
	return te, nil
}

func (t *Tx) getRunningTimeEntryTx(ctx context.Context, userID string) (*types.TimeEntry, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE user_id = ? AND ended_at IS NULL AND deleted_at IS NULL`, userID)
	te, err := scanTimeEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get running time entry: %w", err)
	}
	return te, nil
}

func (t *Tx) stopEntry(ctx context.Context, te *types.TimeEntry, actor string) (*types.TimeEntry, error) {
	now := types.Now()
	duration := int64(now - te.StartedAt)
	te.EndedAt = &now
	te.DurationSeconds = &duration
	te.Version++
	te.UpdatedAt = now
	te.UpdatedBy = actor

	_, err := t.conn.ExecContext(ctx, `
		UPDATE time_entries SET ended_at = ?, duration_seconds = ?, version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND deleted_at IS NULL`,
		te.EndedAt, te.DurationSeconds, te.Version, te.UpdatedAt, te.UpdatedBy, te.ID)
	if err != nil {
		return nil, fmt.Errorf("stop time entry: %w", err)
	}
	return te, nil
}

// StartTimer enforces the at-most-one-running-entry-per-user invariant: if
// the user already has one running, it is stopped first in the same
// transaction before the new entry starts.
func (t *Tx) StartTimer(ctx context.Context, workItemID types.ID, userID string, description *string) (*types.TimeEntry, *types.TimeEntry, error) {
	if _, err := t.GetWorkItemTx(ctx, workItemID); err != nil {
		return nil, nil, err
	}

	var stopped *types.TimeEntry
	running, err := t.getRunningTimeEntryTx(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if running != nil {
		stopped, err = t.stopEntry(ctx, running, userID)
		if err != nil {
			return nil, nil, err
		}
	}

	now := types.Now()
	started := &types.TimeEntry{
		ID:          types.NewID(),
		WorkItemID:  workItemID,
		UserID:      userID,
		StartedAt:   now,
		Description: description,
		Version:     1,
	}
	started.CreatedAt, started.UpdatedAt = now, now
	started.CreatedBy, started.UpdatedBy = userID, userID

	_, err = t.conn.ExecContext(ctx, `
		INSERT INTO time_entries (id, work_item_id, user_id, started_at, ended_at, duration_seconds,
			description, version, created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, ?, ?, NULL)`,
		started.ID, started.WorkItemID, started.UserID, started.StartedAt, started.Description,
		started.Version, started.CreatedAt, started.UpdatedAt, started.CreatedBy, started.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return nil, nil, types.NewError(types.KindInternal, "running timer already exists for user %s after stop", userID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("start timer: %w", err)
	}
	return started, stopped, nil
}

func (t *Tx) StopTimer(ctx context.Context, id types.ID, userID string) (*types.TimeEntry, error) {
	te, err := t.GetTimeEntryTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if te.UserID != userID {
		return nil, types.NewError(types.KindUnauthorized, "time entry %s does not belong to user %s", id, userID)
	}
	if !te.Running() {
		return te, nil
	}
	return t.stopEntry(ctx, te, userID)
}

func (t *Tx) CreateTimeEntry(ctx context.Context, te *types.TimeEntry, actor string) (*types.TimeEntry, error) {
	if _, err := t.GetWorkItemTx(ctx, te.WorkItemID); err != nil {
		return nil, err
	}
	if te.EndedAt != nil && *te.EndedAt < te.StartedAt {
		return nil, types.Validation("ended_at must not precede started_at")
	}
	if te.EndedAt != nil {
		running, err := t.getRunningTimeEntryTx(ctx, te.UserID)
		if err != nil {
			return nil, err
		}
		if running != nil && *te.EndedAt > running.StartedAt {
			return nil, types.Validation("time entry overlaps user %s's running time entry %s", te.UserID, running.ID)
		}
		d := int64(*te.EndedAt - te.StartedAt)
		te.DurationSeconds = &d
	}

	now := types.Now()
	te.Version = 1
	te.CreatedAt, te.UpdatedAt = now, now
	te.CreatedBy, te.UpdatedBy = actor, actor

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO time_entries (id, work_item_id, user_id, started_at, ended_at, duration_seconds,
			description, version, created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		te.ID, te.WorkItemID, te.UserID, te.StartedAt, te.EndedAt, te.DurationSeconds, te.Description,
		te.Version, te.CreatedAt, te.UpdatedAt, te.CreatedBy, te.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return nil, types.NewError(types.KindInternal, "user %s already has a running time entry", te.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("create time entry: %w", err)
	}
	return te, nil
}

func (t *Tx) GetTimeEntryTx(ctx context.Context, id types.ID) (*types.TimeEntry, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ? AND deleted_at IS NULL`, id)
	te, err := scanTimeEntry(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("time entry %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get time entry: %w", err)
	}
	return te, nil
}

func (t *Tx) UpdateTimeEntry(ctx context.Context, id types.ID, expectedVersion uint32, description *string, actor string) (*types.TimeEntry, error) {
	te, err := t.GetTimeEntryTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if te.Version != expectedVersion {
		return nil, types.VersionConflict(te.Version)
	}
	if te.UserID != actor {
		return nil, types.NewError(types.KindUnauthorized, "time entry %s does not belong to user %s", id, actor)
	}

	te.Description = description
	te.Version++
	te.UpdatedAt = types.Now()
	te.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx,
		`UPDATE time_entries SET description = ?, version = ?, updated_at = ?, updated_by = ? WHERE id = ? AND deleted_at IS NULL`,
		te.Description, te.Version, te.UpdatedAt, te.UpdatedBy, te.ID)
	if err != nil {
		return nil, fmt.Errorf("update time entry: %w", err)
	}
	return te, nil
}

func (t *Tx) DeleteTimeEntry(ctx context.Context, id types.ID, actor string) (*types.TimeEntry, error) {
	te, err := t.GetTimeEntryTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if te.UserID != actor {
		return nil, types.NewError(types.KindUnauthorized, "time entry %s does not belong to user %s", id, actor)
	}

	now := types.Now()
	te.DeletedAt = &now
	te.UpdatedAt = now
	te.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx,
		`UPDATE time_entries SET deleted_at = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		now, now, actor, te.ID)
	if err != nil {
		return nil, fmt.Errorf("delete time entry: %w", err)
	}
	return te, nil
}
