package rpc

import (
	"context"
	"encoding/gob"

	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
	"github.com/pmcore/pmcored/internal/validation"
)

type WorkItemCreateArgs struct {
	ItemType    types.WorkItemType
	ProjectID   types.ID
	ParentID    *types.ID
	Position    int64
	Title       string
	Description *string
	Status      types.WorkItemStatus
	Priority    types.Priority
	StoryPoints *float64
	AssigneeID  *string
	SprintID    *types.ID
}

type WorkItemUpdateArgs struct {
	ID              types.ID
	ExpectedVersion uint32
	ParentID        **types.ID
	Position        *int64
	Title           *string
	Description     *string
	Status          *types.WorkItemStatus
	Priority        *types.Priority
	StoryPoints     **float64
	AssigneeID      **string
	SprintID        **types.ID
}

type WorkItemDeleteArgs struct {
	ID              types.ID
	ExpectedVersion uint32
}

func init() {
	gob.Register(WorkItemCreateArgs{})
	gob.Register(WorkItemUpdateArgs{})
	gob.Register(WorkItemDeleteArgs{})
}

func (h *Handler) handleWorkItemMutation(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	var result any
	var ev *events.Event
	err := h.store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		switch cmd.Variant {
		case CmdWorkItemCreate:
			result, ev, err = h.createWorkItem(ctx, tx, actor, cmd.Args)
		case CmdWorkItemUpdate:
			result, ev, err = h.updateWorkItem(ctx, tx, actor, cmd.Args)
		case CmdWorkItemDelete:
			result, ev, err = h.deleteWorkItem(ctx, tx, actor, cmd.Args)
		}
		if err != nil {
			return err
		}
		return recordResult(ctx, tx, messageID, cmd.Variant, result)
	})
	if err != nil {
		return nil, err
	}
	if ev != nil {
		h.publish(ev)
	}
	return result, nil
}

func (h *Handler) createWorkItem(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(WorkItemCreateArgs)
	if args.Status == "" {
		args.Status = types.StatusBacklog
	}
	if args.Priority == "" {
		args.Priority = types.PriorityMedium
	}
	if err := validation.Chain(
		validation.NonEmpty("title", args.Title),
		validation.WorkItemTypeValid(args.ItemType),
		validation.NonNegative("story_points", args.StoryPoints),
		validation.WorkItemStatusValid(args.Status),
		validation.PriorityValid(args.Priority),
	); err != nil {
		return nil, nil, err
	}

	w := &types.WorkItem{
		ID:          idgen.New(),
		ItemType:    args.ItemType,
		ProjectID:   args.ProjectID,
		ParentID:    args.ParentID,
		Position:    args.Position,
		Title:       args.Title,
		Description: args.Description,
		Status:      args.Status,
		Priority:    args.Priority,
		StoryPoints: args.StoryPoints,
		AssigneeID:  args.AssigneeID,
		SprintID:    args.SprintID,
	}
	w, err := tx.CreateWorkItem(ctx, w, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "work_item", EntityID: w.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return w, &events.Event{ProjectID: w.ProjectID, Kind: events.KindWorkItemCreated, Payload: events.WorkItemPayload{WorkItem: w}}, nil
}

func (h *Handler) updateWorkItem(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(WorkItemUpdateArgs)
	if args.StoryPoints != nil {
		if err := validation.NonNegative("story_points", *args.StoryPoints)(); err != nil {
			return nil, nil, err
		}
	}
	if args.Status != nil {
		if err := validation.WorkItemStatusValid(*args.Status)(); err != nil {
			return nil, nil, err
		}
	}
	if args.Priority != nil {
		if err := validation.PriorityValid(*args.Priority)(); err != nil {
			return nil, nil, err
		}
	}

	w, changes, err := tx.UpdateWorkItem(ctx, args.ID, args.ExpectedVersion, storage.WorkItemPatch{
		ParentID:    args.ParentID,
		Position:    args.Position,
		Title:       args.Title,
		Description: args.Description,
		Status:      args.Status,
		Priority:    args.Priority,
		StoryPoints: args.StoryPoints,
		AssigneeID:  args.AssigneeID,
		SprintID:    args.SprintID,
	}, actor)
	if err != nil {
		return nil, nil, err
	}
	if len(changes) == 0 {
		return w, nil, nil
	}

	entries := make([]*types.ActivityLogEntry, len(changes))
	for i, c := range changes {
		fc := c
		entries[i] = &types.ActivityLogEntry{
			EntityType: "work_item", EntityID: w.ID, Action: types.ActivityUpdated,
			FieldName: &fc.FieldName, OldValue: fc.OldValue, NewValue: fc.NewValue, UserID: actor,
		}
	}
	if err := tx.AppendActivityLog(ctx, entries...); err != nil {
		return nil, nil, err
	}
	return w, &events.Event{
		ProjectID:    w.ProjectID,
		Kind:         events.KindWorkItemUpdated,
		Payload:      events.WorkItemPayload{WorkItem: w},
		FieldChanges: changes,
	}, nil
}

func (h *Handler) deleteWorkItem(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(WorkItemDeleteArgs)
	w, err := tx.DeleteWorkItem(ctx, args.ID, args.ExpectedVersion, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "work_item", EntityID: w.ID, Action: types.ActivityDeleted, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return w, &events.Event{ProjectID: w.ProjectID, Kind: events.KindWorkItemDeleted, Payload: events.WorkItemPayload{WorkItem: w}}, nil
}
