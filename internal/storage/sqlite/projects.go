package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*types.Project, error) {
	var p types.Project
	var description sql.NullString
	var deletedAt sql.NullInt64
	err := s.Scan(
		&p.ID, &p.Title, &description, &p.Key, &p.Status, &p.Version, &p.NextWorkItemNumber,
		&p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		p.Description = &description.String
	}
	if deletedAt.Valid {
		ts := types.Timestamp(deletedAt.Int64)
		p.DeletedAt = &ts
	}
	return &p, nil
}

const projectColumns = `id, title, description, key, status, version, next_work_item_number,
	created_at, updated_at, created_by, updated_by, deleted_at`

func (s *Store) GetProject(ctx context.Context, id types.ID) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND deleted_at IS NULL`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *Tx) CreateProject(ctx context.Context, p *types.Project, actor string) (*types.Project, error) {
	now := types.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.CreatedBy, p.UpdatedBy = actor, actor
	p.Version = 1
	if p.NextWorkItemNumber == 0 {
		p.NextWorkItemNumber = 1
	}
	if !p.Status.Valid() {
		p.Status = types.ProjectActive
	}

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO projects (id, title, description, key, status, version, next_work_item_number,
			created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		p.ID, p.Title, p.Description, p.Key, p.Status, p.Version, p.NextWorkItemNumber,
		p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return nil, types.NewError(types.KindUniqueViolation, "project key %q already in use", p.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (t *Tx) getProjectForUpdate(ctx context.Context, id types.ID) (*types.Project, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND deleted_at IS NULL`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("project %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (t *Tx) UpdateProject(ctx context.Context, id types.ID, expectedVersion uint32, patch storage.ProjectPatch, actor string) (*types.Project, error) {
	p, err := t.getProjectForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Version != expectedVersion {
		return nil, types.VersionConflict(p.Version)
	}

	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = patch.Description
	}
	if patch.Key != nil {
		p.Key = *patch.Key
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	p.Version++
	p.UpdatedAt = types.Now()
	p.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx, `
		UPDATE projects SET title = ?, description = ?, key = ?, status = ?, version = ?,
			updated_at = ?, updated_by = ?
		WHERE id = ? AND deleted_at IS NULL`,
		p.Title, p.Description, p.Key, p.Status, p.Version, p.UpdatedAt, p.UpdatedBy, p.ID,
	)
	if isUniqueViolation(err) {
		return nil, types.NewError(types.KindUniqueViolation, "project key %q already in use", p.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

func (t *Tx) DeleteProject(ctx context.Context, id types.ID, expectedVersion uint32, actor string) (*types.Project, error) {
	p, err := t.getProjectForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Version != expectedVersion {
		return nil, types.VersionConflict(p.Version)
	}

	now := types.Now()
	p.DeletedAt = &now
	p.UpdatedAt = now
	p.UpdatedBy = actor
	p.Version++

	_, err = t.conn.ExecContext(ctx,
		`UPDATE projects SET deleted_at = ?, updated_at = ?, updated_by = ?, version = ? WHERE id = ?`,
		now, now, actor, p.Version, p.ID)
	if err != nil {
		return nil, fmt.Errorf("delete project: %w", err)
	}
	return p, nil
}
