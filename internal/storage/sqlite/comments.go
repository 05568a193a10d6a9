package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/types"
)

const commentColumns = `id, work_item_id, content, created_at, updated_at, created_by, updated_by, deleted_at`

func scanComment(s scanner) (*types.Comment, error) {
	var c types.Comment
	var deletedAt sql.NullInt64
	if err := s.Scan(&c.ID, &c.WorkItemID, &c.Content, &c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.UpdatedBy, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		ts := types.Timestamp(deletedAt.Int64)
		c.DeletedAt = &ts
	}
	return &c, nil
}

func (s *Store) GetComment(ctx context.Context, id types.ID) (*types.Comment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ? AND deleted_at IS NULL`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("comment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (s *Store) ListCommentsByWorkItem(ctx context.Context, workItemID types.ID) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE work_item_id = ? AND deleted_at IS NULL ORDER BY created_at`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*types.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *Tx) GetCommentTx(ctx context.Context, id types.ID) (*types.Comment, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ? AND deleted_at IS NULL`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("comment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (t *Tx) CreateComment(ctx context.Context, c *types.Comment, actor string) (*types.Comment, error) {
	if _, err := t.GetWorkItemTx(ctx, c.WorkItemID); err != nil {
		return nil, err
	}
	if c.Content == "" {
		return nil, types.Validation("comment content must not be empty")
	}

	now := types.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.CreatedBy, c.UpdatedBy = actor, actor

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO comments (id, work_item_id, content, created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		c.ID, c.WorkItemID, c.Content, c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.UpdatedBy,
	)
	if isForeignKeyViolation(err) {
		return nil, types.Validation("comment references a missing work item")
	}
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

func (t *Tx) UpdateComment(ctx context.Context, id types.ID, content string, actor string) (*types.Comment, error) {
	c, err := t.GetCommentTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, types.Validation("comment content must not be empty")
	}

	c.Content = content
	c.UpdatedAt = types.Now()
	c.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx,
		`UPDATE comments SET content = ?, updated_at = ?, updated_by = ? WHERE id = ? AND deleted_at IS NULL`,
		c.Content, c.UpdatedAt, c.UpdatedBy, c.ID)
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return c, nil
}

func (t *Tx) DeleteComment(ctx context.Context, id types.ID, actor string) (*types.Comment, error) {
	c, err := t.GetCommentTx(ctx, id)
	if err != nil {
		return nil, err
	}

	now := types.Now()
	c.DeletedAt = &now
	c.UpdatedAt = now
	c.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx,
		`UPDATE comments SET deleted_at = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		now, now, actor, c.ID)
	if err != nil {
		return nil, fmt.Errorf("delete comment: %w", err)
	}
	return c, nil
}
