// Package events defines the typed payloads the command handler projects
// from a committed mutation and hands to the broadcaster for fan-out.
package events

import (
	"encoding/gob"

	"github.com/pmcore/pmcored/internal/types"
)

// Kind identifies the shape of Event.Payload.
type Kind string

const (
	KindProjectCreated Kind = "project_created"
	KindProjectUpdated Kind = "project_updated"
	KindProjectDeleted Kind = "project_deleted"

	KindWorkItemCreated Kind = "work_item_created"
	KindWorkItemUpdated Kind = "work_item_updated"
	KindWorkItemDeleted Kind = "work_item_deleted"

	KindSprintCreated    Kind = "sprint_created"
	KindSprintUpdated    Kind = "sprint_updated"
	KindSprintTransition Kind = "sprint_transitioned"
	KindSprintDeleted    Kind = "sprint_deleted"

	KindCommentCreated Kind = "comment_created"
	KindCommentUpdated Kind = "comment_updated"
	KindCommentDeleted Kind = "comment_deleted"

	KindTimerStarted     Kind = "timer_started"
	KindTimerStopped     Kind = "timer_stopped"
	KindTimeEntryCreated Kind = "time_entry_created"
	KindTimeEntryUpdated Kind = "time_entry_updated"
	KindTimeEntryDeleted Kind = "time_entry_deleted"

	KindDependencyCreated Kind = "dependency_created"
	KindDependencyDeleted Kind = "dependency_deleted"

	KindServerClosing Kind = "server_closing"
)

// Event is the unit the broadcaster fans out to subscribers of ProjectID.
// FieldChanges is populated only for update variants.
type Event struct {
	ProjectID    types.ID
	Kind         Kind
	Payload      any
	FieldChanges []types.FieldChange
}

// ProjectPayload wraps a project snapshot for create/update/delete events.
type ProjectPayload struct {
	Project *types.Project
}

// WorkItemPayload wraps a work item snapshot for create/update/delete events.
type WorkItemPayload struct {
	WorkItem *types.WorkItem
}

// SprintPayload wraps a sprint snapshot for create/update/transition/delete events.
type SprintPayload struct {
	Sprint *types.Sprint
}

// CommentPayload wraps a comment snapshot for create/update/delete events.
type CommentPayload struct {
	Comment *types.Comment
}

// TimerPayload reports the pair of entries affected by StartTimer: the
// newly started entry, and the previously running entry it stopped, if any.
type TimerPayload struct {
	Started *types.TimeEntry
	Stopped *types.TimeEntry
}

// TimeEntryPayload wraps a time entry snapshot for create/update/delete events
// outside the start/stop pair above.
type TimeEntryPayload struct {
	TimeEntry *types.TimeEntry
}

// DependencyPayload wraps a dependency snapshot for create/delete events.
type DependencyPayload struct {
	Dependency *types.Dependency
}

// ServerClosingPayload carries the grace period given to a draining connection.
type ServerClosingPayload struct {
	GraceSeconds int
}

func init() {
	gob.Register(ProjectPayload{})
	gob.Register(WorkItemPayload{})
	gob.Register(SprintPayload{})
	gob.Register(CommentPayload{})
	gob.Register(TimerPayload{})
	gob.Register(TimeEntryPayload{})
	gob.Register(DependencyPayload{})
	gob.Register(ServerClosingPayload{})
}
