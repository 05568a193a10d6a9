package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/types"
)

const dependencyColumns = `id, blocking_item_id, blocked_item_id, type, created_at, updated_at, created_by, updated_by, deleted_at`

func scanDependency(s scanner) (*types.Dependency, error) {
	var d types.Dependency
	var deletedAt sql.NullInt64
	if err := s.Scan(&d.ID, &d.BlockingItemID, &d.BlockedItemID, &d.Type, &d.CreatedAt, &d.UpdatedAt, &d.CreatedBy, &d.UpdatedBy, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		ts := types.Timestamp(deletedAt.Int64)
		d.DeletedAt = &ts
	}
	return &d, nil
}

func (s *Store) ListDependenciesByWorkItem(ctx context.Context, workItemID types.ID) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dependencyColumns+` FROM dependencies
		 WHERE (blocking_item_id = ? OR blocked_item_id = ?) AND deleted_at IS NULL
		 ORDER BY created_at`, workItemID, workItemID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var out []*types.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateDependency rejects cross-project edges and, for blocks edges,
// rejects any edge that would close a cycle; relates_to is exempt.
func (t *Tx) CreateDependency(ctx context.Context, d *types.Dependency, actor string) (*types.Dependency, error) {
	blocking, err := t.GetWorkItemTx(ctx, d.BlockingItemID)
	if err != nil {
		return nil, err
	}
	blocked, err := t.GetWorkItemTx(ctx, d.BlockedItemID)
	if err != nil {
		return nil, err
	}
	if blocking.ProjectID != blocked.ProjectID {
		return nil, types.NewError(types.KindSameProjectRequired, "dependency endpoints must share a project")
	}
	if d.BlockingItemID == d.BlockedItemID {
		return nil, types.Validation("a work item cannot depend on itself")
	}
	if !d.Type.Valid() {
		d.Type = types.DepBlocks
	}
	if d.Type == types.DepBlocks {
		would, err := t.dependencyCycleWouldForm(ctx, d.BlockingItemID, d.BlockedItemID)
		if err != nil {
			return nil, err
		}
		if would {
			return nil, types.NewError(types.KindDependencyCycle, "dependency %s -> %s would close a cycle", d.BlockingItemID, d.BlockedItemID)
		}
	}

	now := types.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	d.CreatedBy, d.UpdatedBy = actor, actor

	_, err = t.conn.ExecContext(ctx, `
		INSERT INTO dependencies (id, blocking_item_id, blocked_item_id, type, created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		d.ID, d.BlockingItemID, d.BlockedItemID, d.Type, d.CreatedAt, d.UpdatedAt, d.CreatedBy, d.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return nil, types.NewError(types.KindUniqueViolation, "dependency %s -> %s already exists", d.BlockingItemID, d.BlockedItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("create dependency: %w", err)
	}
	return d, nil
}

func (t *Tx) DeleteDependency(ctx context.Context, id types.ID, actor string) (*types.Dependency, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+dependencyColumns+` FROM dependencies WHERE id = ? AND deleted_at IS NULL`, id)
	d, err := scanDependency(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("dependency %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dependency: %w", err)
	}

	now := types.Now()
	d.DeletedAt = &now
	d.UpdatedAt = now
	d.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx,
		`UPDATE dependencies SET deleted_at = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		now, now, actor, d.ID)
	if err != nil {
		return nil, fmt.Errorf("delete dependency: %w", err)
	}
	return d, nil
}
