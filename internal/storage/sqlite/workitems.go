package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

const workItemColumns = `id, item_type, project_id, parent_id, position, title, description,
	status, priority, story_points, assignee_id, sprint_id, item_number, version,
	created_at, updated_at, created_by, updated_by, deleted_at`

func scanWorkItem(s scanner) (*types.WorkItem, error) {
	var w types.WorkItem
	var parentID, sprintID, assigneeID, description sql.NullString
	var storyPoints sql.NullFloat64
	var deletedAt sql.NullInt64
	err := s.Scan(
		&w.ID, &w.ItemType, &w.ProjectID, &parentID, &w.Position, &w.Title, &description,
		&w.Status, &w.Priority, &storyPoints, &assigneeID, &sprintID, &w.ItemNumber, &w.Version,
		&w.CreatedAt, &w.UpdatedAt, &w.CreatedBy, &w.UpdatedBy, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		w.Description = &description.String
	}
	if assigneeID.Valid {
		w.AssigneeID = &assigneeID.String
	}
	if storyPoints.Valid {
		w.StoryPoints = &storyPoints.Float64
	}
	if parentID.Valid {
		id, err := types.ParseID(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("parse parent_id: %w", err)
		}
		w.ParentID = &id
	}
	if sprintID.Valid {
		id, err := types.ParseID(sprintID.String)
		if err != nil {
			return nil, fmt.Errorf("parse sprint_id: %w", err)
		}
		w.SprintID = &id
	}
	if deletedAt.Valid {
		ts := types.Timestamp(deletedAt.Int64)
		w.DeletedAt = &ts
	}
	return &w, nil
}

func (s *Store) GetWorkItem(ctx context.Context, id types.ID) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ? AND deleted_at IS NULL`, id)
	w, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("work item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return w, nil
}

func (s *Store) ListWorkItemsByProject(ctx context.Context, projectID types.ID, opts storage.ListOptions) ([]*types.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE project_id = ? AND deleted_at IS NULL`
	args := []any{projectID}
	if opts.Since != nil {
		query += ` AND updated_at >= ?`
		args = append(args, *opts.Since)
	}
	query += ` ORDER BY position, item_number`
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
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (t *Tx) GetWorkItemTx(ctx context.Context, id types.ID) (*types.WorkItem, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ? AND deleted_at IS NULL`, id)
	w, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("work item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return w, nil
}

// CreateWorkItem implements the five-step algorithm: verify project, verify
// parent and ancestry if reparenting, atomically mint item_number from the
// project counter, insert, leave activity-log append to the caller.
func (t *Tx) CreateWorkItem(ctx context.Context, w *types.WorkItem, actor string) (*types.WorkItem, error) {
	project, err := t.getProjectForUpdate(ctx, w.ProjectID)
	if err != nil {
		return nil, err
	}

	if w.ParentID != nil {
		parent, err := t.GetWorkItemTx(ctx, *w.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ProjectID != w.ProjectID {
			return nil, types.NewError(types.KindSameProjectRequired, "parent %s is not in project %s", parent.ID, w.ProjectID)
		}
		if err := t.checkAncestryCycle(ctx, w.ProjectID, w.ID, *w.ParentID); err != nil {
			return nil, err
		}
	}
	if w.SprintID != nil && w.ItemType == types.ItemEpic {
		return nil, types.Validation("epics cannot carry a sprint_id")
	}
	if !w.Status.Valid() {
		return nil, types.Validation("status %q is not a recognized work item status", w.Status)
	}
	if !w.Priority.Valid() {
		return nil, types.Validation("priority %q is not a recognized priority", w.Priority)
	}

	number := project.NextWorkItemNumber
	if _, err := t.conn.ExecContext(ctx,
		`UPDATE projects SET next_work_item_number = ? WHERE id = ?`, number+1, project.ID,
	); err != nil {
		return nil, fmt.Errorf("advance work item counter: %w", err)
	}

	now := types.Now()
	w.ItemNumber = number
	w.Version = 1
	w.CreatedAt, w.UpdatedAt = now, now
	w.CreatedBy, w.UpdatedBy = actor, actor

	_, err = t.conn.ExecContext(ctx, `
		INSERT INTO work_items (id, item_type, project_id, parent_id, position, title, description,
			status, priority, story_points, assignee_id, sprint_id, item_number, version,
			created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		w.ID, w.ItemType, w.ProjectID, w.ParentID, w.Position, w.Title, w.Description,
		w.Status, w.Priority, w.StoryPoints, w.AssigneeID, w.SprintID, w.ItemNumber, w.Version,
		w.CreatedAt, w.UpdatedAt, w.CreatedBy, w.UpdatedBy,
	)
	if isForeignKeyViolation(err) {
		return nil, types.Validation("work item references a missing project, parent, or sprint")
	}
	if err != nil {
		return nil, fmt.Errorf("create work item: %w", err)
	}
	return w, nil
}

func strPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// UpdateWorkItem applies patch to the stored row and returns the resulting
// field-level deltas for the caller to project into the activity log.
func (t *Tx) UpdateWorkItem(ctx context.Context, id types.ID, expectedVersion uint32, patch storage.WorkItemPatch, actor string) (*types.WorkItem, []types.FieldChange, error) {
	w, err := t.GetWorkItemTx(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if w.Version != expectedVersion {
		return nil, nil, types.VersionConflict(w.Version)
	}

	var changes []types.FieldChange

	if patch.Title != nil && *patch.Title != w.Title {
		changes = append(changes, types.FieldChange{FieldName: "title", OldValue: strp(w.Title), NewValue: patch.Title})
		w.Title = *patch.Title
	}
	if patch.Description != nil && !strEqPtr(w.Description, patch.Description) {
		changes = append(changes, types.FieldChange{FieldName: "description", OldValue: w.Description, NewValue: patch.Description})
		w.Description = patch.Description
	}
	if patch.Status != nil && *patch.Status != w.Status {
		changes = append(changes, types.FieldChange{FieldName: "status", OldValue: strp(string(w.Status)), NewValue: strp(string(*patch.Status))})
		w.Status = *patch.Status
	}
	if patch.Priority != nil && *patch.Priority != w.Priority {
		changes = append(changes, types.FieldChange{FieldName: "priority", OldValue: strp(string(w.Priority)), NewValue: strp(string(*patch.Priority))})
		w.Priority = *patch.Priority
	}
	if patch.Position != nil && *patch.Position != w.Position {
		changes = append(changes, types.FieldChange{FieldName: "position", OldValue: strp(fmt.Sprint(w.Position)), NewValue: strp(fmt.Sprint(*patch.Position))})
		w.Position = *patch.Position
	}
	if patch.StoryPoints != nil && !floatEqPtr(w.StoryPoints, *patch.StoryPoints) {
		changes = append(changes, types.FieldChange{FieldName: "story_points", OldValue: floatStr(w.StoryPoints), NewValue: floatStr(*patch.StoryPoints)})
		w.StoryPoints = *patch.StoryPoints
	}
	if patch.AssigneeID != nil && !strEqPtr(w.AssigneeID, *patch.AssigneeID) {
		changes = append(changes, types.FieldChange{FieldName: "assignee_id", OldValue: w.AssigneeID, NewValue: *patch.AssigneeID})
		w.AssigneeID = *patch.AssigneeID
	}

	reparenting := patch.ParentID != nil
	var newParent *types.ID
	if reparenting {
		newParent = *patch.ParentID
		if !idEqPtr(w.ParentID, newParent) {
			oldStr, newStr := strPtr(w.ParentID), strPtr(newParent)
			changes = append(changes, types.FieldChange{FieldName: "parent_id", OldValue: oldStr, NewValue: newStr})
			if newParent != nil {
				if *newParent == w.ID {
					return nil, nil, types.NewError(types.KindDependencyCycle, "work item cannot be its own parent")
				}
				parent, err := t.GetWorkItemTx(ctx, *newParent)
				if err != nil {
					return nil, nil, err
				}
				if parent.ProjectID != w.ProjectID {
					return nil, nil, types.NewError(types.KindSameProjectRequired, "parent %s is not in project %s", parent.ID, w.ProjectID)
				}
				if err := t.checkAncestryCycle(ctx, w.ProjectID, w.ID, *newParent); err != nil {
					return nil, nil, err
				}
			}
			w.ParentID = newParent
		}
	}

	sprintChanging := patch.SprintID != nil
	var newSprint *types.ID
	if sprintChanging {
		newSprint = *patch.SprintID
		if !idEqPtr(w.SprintID, newSprint) {
			if newSprint != nil && w.ItemType == types.ItemEpic {
				return nil, nil, types.Validation("epics cannot carry a sprint_id")
			}
			changes = append(changes, types.FieldChange{FieldName: "sprint_id", OldValue: strPtr(w.SprintID), NewValue: strPtr(newSprint)})
			w.SprintID = newSprint
		}
	}

	if len(changes) == 0 {
		return w, nil, nil
	}

	w.Version++
	w.UpdatedAt = types.Now()
	w.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx, `
		UPDATE work_items SET parent_id = ?, position = ?, title = ?, description = ?,
			status = ?, priority = ?, story_points = ?, assignee_id = ?, sprint_id = ?,
			version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND deleted_at IS NULL`,
		w.ParentID, w.Position, w.Title, w.Description, w.Status, w.Priority,
		w.StoryPoints, w.AssigneeID, w.SprintID, w.Version, w.UpdatedAt, w.UpdatedBy, w.ID,
	)
	if isForeignKeyViolation(err) {
		return nil, nil, types.Validation("work item update references a missing parent or sprint")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("update work item: %w", err)
	}
	return w, changes, nil
}

func (t *Tx) DeleteWorkItem(ctx context.Context, id types.ID, expectedVersion uint32, actor string) (*types.WorkItem, error) {
	w, err := t.GetWorkItemTx(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Version != expectedVersion {
		return nil, types.VersionConflict(w.Version)
	}

	now := types.Now()
	w.DeletedAt = &now
	w.UpdatedAt = now
	w.UpdatedBy = actor
	w.Version++

	_, err = t.conn.ExecContext(ctx,
		`UPDATE work_items SET deleted_at = ?, updated_at = ?, updated_by = ?, version = ? WHERE id = ?`,
		now, now, actor, w.Version, w.ID)
	if err != nil {
		return nil, fmt.Errorf("delete work item: %w", err)
	}
	return w, nil
}

func strp(s string) *string { return &s }

func strEqPtr(a *string, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func floatEqPtr(a *float64, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func floatStr(f *float64) *string {
	if f == nil {
		return nil
	}
	return strp(fmt.Sprintf("%g", *f))
}

func idEqPtr(a *types.ID, b *types.ID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
