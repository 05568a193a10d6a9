package rpc

import (
	"context"
	"encoding/gob"
	"fmt"

	"github.com/pmcore/pmcored/internal/broadcast"
	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

// Handler parses and validates each decoded command, routes it to a store
// operation, projects the resulting event to the broadcaster, and returns
// the reply payload.
type Handler struct {
	store       storage.Store
	broadcaster *broadcast.Broadcaster

	onSlowSubscriber func(connID string)
}

func NewHandler(store storage.Store, b *broadcast.Broadcaster) *Handler {
	return &Handler{store: store, broadcaster: b}
}

// OnSlowSubscriber registers fn to be invoked with each connection ID the
// broadcaster reports as dropped for falling behind on its event queue. The
// Server uses this to actually tear the connection down rather than leaving
// it silently unsubscribed from everything.
func (h *Handler) OnSlowSubscriber(fn func(connID string)) {
	h.onSlowSubscriber = fn
}

// Handle dispatches cmd, returning the reply payload on success. messageID
// drives idempotency: a previously-seen id with a matching operation
// returns the recorded result without re-executing the mutation.
func (h *Handler) Handle(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	if messageID != "" && isMutating(cmd.Variant) {
		if rec, err := h.store.LookupIdempotency(ctx, messageID); err == nil && rec != nil {
			if rec.Operation != string(cmd.Variant) {
				return nil, types.NewError(types.KindIdempotencyMismatch,
					"message_id %s was already used for operation %s", messageID, rec.Operation)
			}
			return decodeIdempotentResult(rec.SerializedResult)
		}
	}

	switch cmd.Variant {
	case CmdProjectCreate, CmdProjectUpdate, CmdProjectDelete:
		return h.handleProjectMutation(ctx, messageID, actor, cmd)
	case CmdProjectList:
		return h.store.ListProjects(ctx)

	case CmdWorkItemCreate, CmdWorkItemUpdate, CmdWorkItemDelete:
		return h.handleWorkItemMutation(ctx, messageID, actor, cmd)
	case CmdWorkItemList:
		args, _ := cmd.Args.(WorkItemListArgs)
		return h.store.ListWorkItemsByProject(ctx, args.ProjectID, storage.ListOptions{Since: args.Since, Limit: args.Limit, Offset: args.Offset})

	case CmdSprintCreate, CmdSprintUpdate, CmdSprintStart, CmdSprintComplete, CmdSprintCancel, CmdSprintDelete:
		return h.handleSprintMutation(ctx, messageID, actor, cmd)
	case CmdSprintList:
		args, _ := cmd.Args.(SprintListArgs)
		return h.store.ListSprintsByProject(ctx, args.ProjectID)

	case CmdCommentCreate, CmdCommentUpdate, CmdCommentDelete:
		return h.handleCommentMutation(ctx, messageID, actor, cmd)
	case CmdCommentList:
		args, _ := cmd.Args.(CommentListArgs)
		return h.store.ListCommentsByWorkItem(ctx, args.WorkItemID)

	case CmdTimerStart, CmdTimerStop, CmdTimeEntryCreate, CmdTimeEntryUpdate, CmdTimeEntryDelete:
		return h.handleTimeEntryMutation(ctx, messageID, actor, cmd)
	case CmdTimeEntryList:
		args, _ := cmd.Args.(TimeEntryListArgs)
		return h.store.ListTimeEntriesByWorkItem(ctx, args.WorkItemID, storage.ListOptions{Limit: args.Limit, Offset: args.Offset})
	case CmdTimeEntryRunning:
		args, _ := cmd.Args.(TimeEntryRunningArgs)
		return h.store.GetRunningTimeEntry(ctx, args.UserID)

	case CmdDependencyCreate, CmdDependencyDelete:
		return h.handleDependencyMutation(ctx, messageID, actor, cmd)
	case CmdDependencyList:
		args, _ := cmd.Args.(DependencyListArgs)
		return h.store.ListDependenciesByWorkItem(ctx, args.WorkItemID)

	case CmdActivityLogList:
		args, _ := cmd.Args.(ActivityLogListArgs)
		return h.store.ListActivityLog(ctx, args.EntityType, args.EntityID, storage.ListOptions{Since: args.Since, Limit: args.Limit, Offset: args.Offset})
	}

	return nil, types.NewError(types.KindValidation, "unrecognized command variant %q", cmd.Variant)
}

func isMutating(v CommandVariant) bool {
	switch v {
	case CmdProjectList, CmdWorkItemList, CmdSprintList, CmdCommentList,
		CmdTimeEntryList, CmdTimeEntryRunning, CmdDependencyList, CmdActivityLogList,
		CmdSubscribe, CmdUnsubscribe, CmdHeartbeat, CmdIdentify:
		return false
	}
	return true
}

// recordResult appends the idempotency ledger entry inside the same
// transaction as the mutation it guards.
func recordResult(ctx context.Context, tx storage.Tx, messageID string, variant CommandVariant, result any) error {
	if messageID == "" {
		return nil
	}
	blob, err := encodeIdempotentResult(result)
	if err != nil {
		return fmt.Errorf("serialize idempotent result: %w", err)
	}
	return tx.RecordIdempotency(ctx, &types.IdempotencyRecord{
		MessageID:        messageID,
		Operation:        string(variant),
		SerializedResult: blob,
	})
}

// publish hands ev to the broadcaster once the transaction that produced it
// has committed.
func (h *Handler) publish(ev *events.Event) {
	if ev == nil {
		return
	}
	dropped := h.broadcaster.Publish(ev)
	for _, connID := range dropped {
		if h.onSlowSubscriber != nil {
			h.onSlowSubscriber(connID)
		}
	}
}

// List/read-only argument shapes. Mutation argument shapes live alongside
// their handlers in handler_<entity>.go.
type WorkItemListArgs struct {
	ProjectID types.ID
	Since     *types.Timestamp
	Limit     int
	Offset    int
}

type SprintListArgs struct {
	ProjectID types.ID
}

type CommentListArgs struct {
	WorkItemID types.ID
}

type TimeEntryListArgs struct {
	WorkItemID types.ID
	Limit      int
	Offset     int
}

type TimeEntryRunningArgs struct {
	UserID string
}

type DependencyListArgs struct {
	WorkItemID types.ID
}

type ActivityLogListArgs struct {
	EntityType string
	EntityID   types.ID
	Since      *types.Timestamp
	Limit      int
	Offset     int
}

// SubscribeArgs carries the set of projects a connection subscribes to or
// unsubscribes from in one command.
type SubscribeArgs struct {
	ProjectIDs []types.ID
}

func init() {
	gob.Register(WorkItemListArgs{})
	gob.Register(SprintListArgs{})
	gob.Register(CommentListArgs{})
	gob.Register(TimeEntryListArgs{})
	gob.Register(TimeEntryRunningArgs{})
	gob.Register(DependencyListArgs{})
	gob.Register(ActivityLogListArgs{})
	gob.Register(SubscribeArgs{})
	gob.Register(IdentifyArgs{})
	gob.Register([]*types.Project{})
	gob.Register([]*types.WorkItem{})
	gob.Register([]*types.Sprint{})
	gob.Register([]*types.Comment{})
	gob.Register([]*types.TimeEntry{})
	gob.Register([]*types.Dependency{})
	gob.Register([]*types.ActivityLogEntry{})
	gob.Register(&types.Project{})
	gob.Register(&types.WorkItem{})
	gob.Register(&types.Sprint{})
	gob.Register(&types.Comment{})
	gob.Register(&types.TimeEntry{})
	gob.Register(&types.Dependency{})
	gob.Register(struct{ OK bool }{})
}
