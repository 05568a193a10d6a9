package types

import (
	"time"

	"github.com/google/uuid"
)

// ID is a 128-bit identifier compared as an opaque byte string.
type ID = uuid.UUID

// NewID generates a fresh random identifier.
func NewID() ID { return uuid.New() }

// ParseID parses a canonical textual UUID.
func ParseID(s string) (ID, error) { return uuid.Parse(s) }

// Timestamp is an integer count of seconds since the Unix epoch.
type Timestamp int64

// Now returns the current wall-clock second.
func Now() Timestamp { return Timestamp(time.Now().Unix()) }

// Audit holds the fields every mutable entity carries.
type Audit struct {
	CreatedAt Timestamp
	UpdatedAt Timestamp
	CreatedBy string
	UpdatedBy string
	DeletedAt *Timestamp
}

func (a Audit) Deleted() bool { return a.DeletedAt != nil }

// ProjectStatus enumerates the lifecycle of a Project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectArchived:
		return true
	}
	return false
}

// Project is the top-level container for work items.
type Project struct {
	ID                 ID
	Title               string
	Description         *string
	Key                 string
	Status              ProjectStatus
	Version             uint32
	NextWorkItemNumber  uint32
	Audit
}

// WorkItemType enumerates the polymorphic work-item kinds.
type WorkItemType string

const (
	ItemEpic  WorkItemType = "epic"
	ItemStory WorkItemType = "story"
	ItemTask  WorkItemType = "task"
)

func (t WorkItemType) Valid() bool {
	switch t {
	case ItemEpic, ItemStory, ItemTask:
		return true
	}
	return false
}

// WorkItemStatus enumerates the status column of a work item.
type WorkItemStatus string

const (
	StatusBacklog    WorkItemStatus = "backlog"
	StatusTodo       WorkItemStatus = "todo"
	StatusInProgress WorkItemStatus = "in_progress"
	StatusReview     WorkItemStatus = "review"
	StatusDone       WorkItemStatus = "done"
)

func (s WorkItemStatus) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Priority enumerates work-item priority.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// WorkItem is the polymorphic epic/story/task entity.
type WorkItem struct {
	ID          ID
	ItemType    WorkItemType
	ProjectID   ID
	ParentID    *ID
	Position    int64
	Title       string
	Description *string
	Status      WorkItemStatus
	Priority    Priority
	StoryPoints *float64
	AssigneeID  *string
	SprintID    *ID
	ItemNumber  uint32
	Version     uint32
	Audit
}

// SprintStatus enumerates the sprint state machine's states.
type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
	SprintCancelled SprintStatus = "cancelled"
)

func (s SprintStatus) Valid() bool {
	switch s {
	case SprintPlanned, SprintActive, SprintCompleted, SprintCancelled:
		return true
	}
	return false
}

// sprintTransitions enumerates the permitted edges of the sprint state machine.
var sprintTransitions = map[SprintStatus]map[SprintStatus]bool{
	SprintPlanned: {SprintActive: true, SprintCancelled: true},
	SprintActive:  {SprintCompleted: true, SprintCancelled: true},
}

// CanTransitionSprint reports whether from -> to is a permitted sprint status edge.
func CanTransitionSprint(from, to SprintStatus) bool {
	edges, ok := sprintTransitions[from]
	return ok && edges[to]
}

// Sprint is a time-boxed iteration scoped to a project.
type Sprint struct {
	ID        ID
	ProjectID ID
	Name      string
	Goal      *string
	StartDate Timestamp
	EndDate   Timestamp
	Status    SprintStatus
	Velocity  *float64
	Version   uint32
	Audit
}

// Comment is a free-text annotation on a work item.
type Comment struct {
	ID         ID
	WorkItemID ID
	Content    string
	Audit
}

// TimeEntry records time logged against a work item.
type TimeEntry struct {
	ID              ID
	WorkItemID      ID
	UserID          string
	StartedAt       Timestamp
	EndedAt         *Timestamp
	DurationSeconds *int64
	Description     *string
	Version         uint32
	Audit
}

func (t TimeEntry) Running() bool { return t.EndedAt == nil }

// DependencyType enumerates the two dependency edge kinds.
type DependencyType string

const (
	DepBlocks    DependencyType = "blocks"
	DepRelatesTo DependencyType = "relates_to"
)

func (t DependencyType) Valid() bool {
	switch t {
	case DepBlocks, DepRelatesTo:
		return true
	}
	return false
}

// Dependency is a directed edge between two work items.
type Dependency struct {
	ID              ID
	BlockingItemID  ID
	BlockedItemID   ID
	Type            DependencyType
	Audit
}

// ActivityAction enumerates the append-only activity log's action kinds.
type ActivityAction string

const (
	ActivityCreated ActivityAction = "created"
	ActivityUpdated ActivityAction = "updated"
	ActivityDeleted ActivityAction = "deleted"
)

// ActivityLogEntry is one immutable row of the append-only activity journal.
type ActivityLogEntry struct {
	ID         int64
	EntityType string
	EntityID   ID
	Action     ActivityAction
	FieldName  *string
	OldValue   *string
	NewValue   *string
	UserID     string
	Timestamp  Timestamp
	Comment    *string
}

// FieldChange is one field-level delta surfaced alongside an update event.
type FieldChange struct {
	FieldName string
	OldValue  *string
	NewValue  *string
}

// IdempotencyRecord maps a message id to the serialized result of the
// command that produced it.
type IdempotencyRecord struct {
	MessageID      string
	Operation      string
	SerializedResult []byte
	CreatedAt      Timestamp
}

// SwimLane is reference data used to group work items within a project board.
type SwimLane struct {
	ID        ID
	ProjectID ID
	Name      string
	Position  int64
}

// ProjectMember is reference data recording a user's association with a project.
type ProjectMember struct {
	ProjectID ID
	UserID    string
	Role      string
}

// LLMContext is read-only reference data never written by the core.
type LLMContext struct {
	ID         ID
	WorkItemID ID
	Content    string
	CreatedAt  Timestamp
}
