// Package storage defines the sole gateway to persisted core state.
package storage

import (
	"context"

	"github.com/pmcore/pmcored/internal/types"
)

// WorkItemPatch carries the optional fields an update may change. A nil
// pointer means "leave unchanged"; ParentID and SprintID use a double
// pointer so "set to null" (non-nil outer, nil inner) is distinguishable
// from "leave unchanged" (nil outer).
type WorkItemPatch struct {
	ParentID    **types.ID
	Position    *int64
	Title       *string
	Description *string
	Status      *types.WorkItemStatus
	Priority    *types.Priority
	StoryPoints **float64
	AssigneeID  **string
	SprintID    **types.ID
}

// ProjectPatch carries the optional fields a project update may change.
type ProjectPatch struct {
	Title       *string
	Description *string
	Key         *string
	Status      *types.ProjectStatus
}

// SprintPatch carries the optional fields a sprint update may change.
type SprintPatch struct {
	Name      *string
	Goal      **string
	StartDate *types.Timestamp
	EndDate   *types.Timestamp
	Velocity  **float64
}

// ListOptions bounds paginated reads.
type ListOptions struct {
	Since  *types.Timestamp
	Limit  int
	Offset int
}

// Store is the sole gateway to persisted state. Mutating operations open
// their own transaction; Tx exposes the subset usable inside a caller-driven
// transaction so a command and its idempotency record commit atomically.
type Store interface {
	// WithinTransaction runs fn inside a single BEGIN IMMEDIATE transaction,
	// committing on nil error and rolling back otherwise (including panics).
	WithinTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Idempotency lookup is a plain snapshot read, outside any caller transaction.
	LookupIdempotency(ctx context.Context, messageID string) (*types.IdempotencyRecord, error)
	SweepIdempotency(ctx context.Context, olderThan types.Timestamp) (int64, error)

	// Read-only snapshot accessors used by the command handler outside mutations.
	GetProject(ctx context.Context, id types.ID) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	GetWorkItem(ctx context.Context, id types.ID) (*types.WorkItem, error)
	ListWorkItemsByProject(ctx context.Context, projectID types.ID, opts ListOptions) ([]*types.WorkItem, error)
	GetSprint(ctx context.Context, id types.ID) (*types.Sprint, error)
	ListSprintsByProject(ctx context.Context, projectID types.ID) ([]*types.Sprint, error)
	GetComment(ctx context.Context, id types.ID) (*types.Comment, error)
	ListCommentsByWorkItem(ctx context.Context, workItemID types.ID) ([]*types.Comment, error)
	GetTimeEntry(ctx context.Context, id types.ID) (*types.TimeEntry, error)
	ListTimeEntriesByWorkItem(ctx context.Context, workItemID types.ID, opts ListOptions) ([]*types.TimeEntry, error)
	GetRunningTimeEntry(ctx context.Context, userID string) (*types.TimeEntry, error)
	ListDependenciesByWorkItem(ctx context.Context, workItemID types.ID) ([]*types.Dependency, error)
	ListActivityLog(ctx context.Context, entityType string, entityID types.ID, opts ListOptions) ([]*types.ActivityLogEntry, error)

	Close() error
}

// Tx is the subset of Store usable inside WithinTransaction. Every method
// mutates, except the read-your-writes Get accessors which a multi-step
// operation (e.g. re-parenting) needs before committing.
type Tx interface {
	CreateProject(ctx context.Context, p *types.Project, actor string) (*types.Project, error)
	UpdateProject(ctx context.Context, id types.ID, expectedVersion uint32, patch ProjectPatch, actor string) (*types.Project, error)
	DeleteProject(ctx context.Context, id types.ID, expectedVersion uint32, actor string) (*types.Project, error)

	CreateWorkItem(ctx context.Context, w *types.WorkItem, actor string) (*types.WorkItem, error)
	UpdateWorkItem(ctx context.Context, id types.ID, expectedVersion uint32, patch WorkItemPatch, actor string) (*types.WorkItem, []types.FieldChange, error)
	DeleteWorkItem(ctx context.Context, id types.ID, expectedVersion uint32, actor string) (*types.WorkItem, error)
	GetWorkItemTx(ctx context.Context, id types.ID) (*types.WorkItem, error)

	CreateSprint(ctx context.Context, s *types.Sprint, actor string) (*types.Sprint, error)
	UpdateSprint(ctx context.Context, id types.ID, expectedVersion uint32, patch SprintPatch, actor string) (*types.Sprint, error)
	TransitionSprint(ctx context.Context, id types.ID, expectedVersion uint32, to types.SprintStatus, actor string) (*types.Sprint, error)
	DeleteSprint(ctx context.Context, id types.ID, expectedVersion uint32, actor string) (*types.Sprint, error)

	CreateComment(ctx context.Context, c *types.Comment, actor string) (*types.Comment, error)
	UpdateComment(ctx context.Context, id types.ID, content string, actor string) (*types.Comment, error)
	DeleteComment(ctx context.Context, id types.ID, actor string) (*types.Comment, error)
	GetCommentTx(ctx context.Context, id types.ID) (*types.Comment, error)

	StartTimer(ctx context.Context, workItemID types.ID, userID string, description *string) (started *types.TimeEntry, stopped *types.TimeEntry, err error)
	StopTimer(ctx context.Context, id types.ID, userID string) (*types.TimeEntry, error)
	CreateTimeEntry(ctx context.Context, t *types.TimeEntry, actor string) (*types.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, id types.ID, expectedVersion uint32, description *string, actor string) (*types.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id types.ID, actor string) (*types.TimeEntry, error)
	GetTimeEntryTx(ctx context.Context, id types.ID) (*types.TimeEntry, error)

	CreateDependency(ctx context.Context, d *types.Dependency, actor string) (*types.Dependency, error)
	DeleteDependency(ctx context.Context, id types.ID, actor string) (*types.Dependency, error)

	AppendActivityLog(ctx context.Context, entries ...*types.ActivityLogEntry) error

	RecordIdempotency(ctx context.Context, rec *types.IdempotencyRecord) error
}
