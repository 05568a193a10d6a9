package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

const sprintColumns = `id, project_id, name, goal, start_date, end_date, status, velocity, version,
	created_at, updated_at, created_by, updated_by, deleted_at`

func scanSprint(s scanner) (*types.Sprint, error) {
	var sp types.Sprint
	var goal sql.NullString
	var velocity sql.NullFloat64
	var deletedAt sql.NullInt64
	err := s.Scan(
		&sp.ID, &sp.ProjectID, &sp.Name, &goal, &sp.StartDate, &sp.EndDate, &sp.Status, &velocity,
		&sp.Version, &sp.CreatedAt, &sp.UpdatedAt, &sp.CreatedBy, &sp.UpdatedBy, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if goal.Valid {
		sp.Goal = &goal.String
	}
	if velocity.Valid {
		sp.Velocity = &velocity.Float64
	}
	if deletedAt.Valid {
		ts := types.Timestamp(deletedAt.Int64)
		sp.DeletedAt = &ts
	}
	return &sp, nil
}

func (s *Store) GetSprint(ctx context.Context, id types.ID) (*types.Sprint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE id = ? AND deleted_at IS NULL`, id)
	sp, err := scanSprint(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("sprint %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sprint: %w", err)
	}
	return sp, nil
}

func (s *Store) ListSprintsByProject(ctx context.Context, projectID types.ID) ([]*types.Sprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? AND deleted_at IS NULL ORDER BY start_date`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	var out []*types.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (t *Tx) getSprintForUpdate(ctx context.Context, id types.ID) (*types.Sprint, error) {
	row := t.conn.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE id = ? AND deleted_at IS NULL`, id)
	sp, err := scanSprint(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("sprint %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sprint: %w", err)
	}
	return sp, nil
}

func (t *Tx) CreateSprint(ctx context.Context, sp *types.Sprint, actor string) (*types.Sprint, error) {
	if _, err := t.getProjectForUpdate(ctx, sp.ProjectID); err != nil {
		return nil, err
	}
	if sp.EndDate < sp.StartDate {
		return nil, types.Validation("end_date must not precede start_date")
	}
	if !sp.Status.Valid() {
		return nil, types.Validation("status %q is not a recognized sprint status", sp.Status)
	}
	if sp.Status == types.SprintActive {
		if err := t.rejectConcurrentActiveSprint(ctx, sp.ProjectID, sp.ID); err != nil {
			return nil, err
		}
	}

	now := types.Now()
	sp.Version = 1
	sp.CreatedAt, sp.UpdatedAt = now, now
	sp.CreatedBy, sp.UpdatedBy = actor, actor

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO sprints (id, project_id, name, goal, start_date, end_date, status, velocity,
			version, created_at, updated_at, created_by, updated_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		sp.ID, sp.ProjectID, sp.Name, sp.Goal, sp.StartDate, sp.EndDate, sp.Status, sp.Velocity,
		sp.Version, sp.CreatedAt, sp.UpdatedAt, sp.CreatedBy, sp.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return nil, types.NewError(types.KindConflictingActiveSprint, "project %s already has an active sprint", sp.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("create sprint: %w", err)
	}
	return sp, nil
}

// rejectConcurrentActiveSprint enforces at most one active sprint per
// project ahead of the insert/update so the caller gets KindConflictingActiveSprint
// instead of a raw unique-index error when there's no partial-index race.
func (t *Tx) rejectConcurrentActiveSprint(ctx context.Context, projectID types.ID, except types.ID) error {
	var count int
	if err := t.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sprints WHERE project_id = ? AND status = 'active' AND deleted_at IS NULL AND id != ?`,
		projectID, except,
	).Scan(&count); err != nil {
		return fmt.Errorf("count active sprints: %w", err)
	}
	if count > 0 {
		return types.NewError(types.KindConflictingActiveSprint, "project %s already has an active sprint", projectID)
	}
	return nil
}

func (t *Tx) UpdateSprint(ctx context.Context, id types.ID, expectedVersion uint32, patch storage.SprintPatch, actor string) (*types.Sprint, error) {
	sp, err := t.getSprintForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Version != expectedVersion {
		return nil, types.VersionConflict(sp.Version)
	}

	if patch.Name != nil {
		sp.Name = *patch.Name
	}
	if patch.Goal != nil {
		sp.Goal = *patch.Goal
	}
	if patch.StartDate != nil {
		sp.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		sp.EndDate = *patch.EndDate
	}
	if patch.Velocity != nil {
		sp.Velocity = *patch.Velocity
	}
	if sp.EndDate < sp.StartDate {
		return nil, types.Validation("end_date must not precede start_date")
	}

	sp.Version++
	sp.UpdatedAt = types.Now()
	sp.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx, `
		UPDATE sprints SET name = ?, goal = ?, start_date = ?, end_date = ?, velocity = ?,
			version = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND deleted_at IS NULL`,
		sp.Name, sp.Goal, sp.StartDate, sp.EndDate, sp.Velocity, sp.Version, sp.UpdatedAt, sp.UpdatedBy, sp.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update sprint: %w", err)
	}
	return sp, nil
}

// TransitionSprint enforces the planned/active/completed/cancelled state
// machine and the at-most-one-active-sprint-per-project invariant.
func (t *Tx) TransitionSprint(ctx context.Context, id types.ID, expectedVersion uint32, to types.SprintStatus, actor string) (*types.Sprint, error) {
	sp, err := t.getSprintForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Version != expectedVersion {
		return nil, types.VersionConflict(sp.Version)
	}
	if !types.CanTransitionSprint(sp.Status, to) {
		return nil, types.NewError(types.KindInvalidTransition, "sprint cannot transition from %s to %s", sp.Status, to)
	}
	if to == types.SprintActive {
		if err := t.rejectConcurrentActiveSprint(ctx, sp.ProjectID, sp.ID); err != nil {
			return nil, err
		}
	}

	sp.Status = to
	sp.Version++
	sp.UpdatedAt = types.Now()
	sp.UpdatedBy = actor

	_, err = t.conn.ExecContext(ctx,
		`UPDATE sprints SET status = ?, version = ?, updated_at = ?, updated_by = ? WHERE id = ? AND deleted_at IS NULL`,
		sp.Status, sp.Version, sp.UpdatedAt, sp.UpdatedBy, sp.ID)
	if isUniqueViolation(err) {
		return nil, types.NewError(types.KindConflictingActiveSprint, "project %s already has an active sprint", sp.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("transition sprint: %w", err)
	}
	return sp, nil
}

func (t *Tx) DeleteSprint(ctx context.Context, id types.ID, expectedVersion uint32, actor string) (*types.Sprint, error) {
	sp, err := t.getSprintForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Version != expectedVersion {
		return nil, types.VersionConflict(sp.Version)
	}

	now := types.Now()
	sp.DeletedAt = &now
	sp.UpdatedAt = now
	sp.UpdatedBy = actor
	sp.Version++

	_, err = t.conn.ExecContext(ctx,
		`UPDATE sprints SET deleted_at = ?, updated_at = ?, updated_by = ?, version = ? WHERE id = ?`,
		now, now, actor, sp.Version, sp.ID)
	if err != nil {
		return nil, fmt.Errorf("delete sprint: %w", err)
	}
	return sp, nil
}
