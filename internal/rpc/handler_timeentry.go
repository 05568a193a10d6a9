package rpc

import (
	"context"
	"encoding/gob"

	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

type TimerStartArgs struct {
	WorkItemID  types.ID
	Description *string
}

type TimerStopArgs struct {
	ID types.ID
}

type TimeEntryCreateArgs struct {
	WorkItemID  types.ID
	StartedAt   types.Timestamp
	EndedAt     *types.Timestamp
	Description *string
}

type TimeEntryUpdateArgs struct {
	ID              types.ID
	ExpectedVersion uint32
	Description     *string
}

type TimeEntryDeleteArgs struct {
	ID types.ID
}

// TimerStartResult reports both halves of a StartTimer call: the entry just
// started, and the previously running entry it stopped, if any.
type TimerStartResult struct {
	Started *types.TimeEntry
	Stopped *types.TimeEntry
}

func init() {
	gob.Register(TimerStartArgs{})
	gob.Register(TimerStopArgs{})
	gob.Register(TimeEntryCreateArgs{})
	gob.Register(TimeEntryUpdateArgs{})
	gob.Register(TimeEntryDeleteArgs{})
	gob.Register(TimerStartResult{})
}

func (h *Handler) handleTimeEntryMutation(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	var result any
	var ev *events.Event
	err := h.store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		switch cmd.Variant {
		case CmdTimerStart:
			result, ev, err = h.startTimer(ctx, tx, actor, cmd.Args)
		case CmdTimerStop:
			result, ev, err = h.stopTimer(ctx, tx, actor, cmd.Args)
		case CmdTimeEntryCreate:
			result, ev, err = h.createTimeEntry(ctx, tx, actor, cmd.Args)
		case CmdTimeEntryUpdate:
			result, ev, err = h.updateTimeEntry(ctx, tx, actor, cmd.Args)
		case CmdTimeEntryDelete:
			result, ev, err = h.deleteTimeEntry(ctx, tx, actor, cmd.Args)
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

func (h *Handler) startTimer(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(TimerStartArgs)
	started, stopped, err := tx.StartTimer(ctx, args.WorkItemID, actor, args.Description)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, started.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "time_entry", EntityID: started.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	result := TimerStartResult{Started: started, Stopped: stopped}
	return result, &events.Event{
		ProjectID: w.ProjectID,
		Kind:      events.KindTimerStarted,
		Payload:   events.TimerPayload{Started: started, Stopped: stopped},
	}, nil
}

func (h *Handler) stopTimer(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(TimerStopArgs)
	te, err := tx.StopTimer(ctx, args.ID, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, te.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "time_entry", EntityID: te.ID, Action: types.ActivityUpdated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return te, &events.Event{ProjectID: w.ProjectID, Kind: events.KindTimerStopped, Payload: events.TimerPayload{Stopped: te}}, nil
}

func (h *Handler) createTimeEntry(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(TimeEntryCreateArgs)
	te := &types.TimeEntry{
		ID:          idgen.New(),
		WorkItemID:  args.WorkItemID,
		UserID:      actor,
		StartedAt:   args.StartedAt,
		EndedAt:     args.EndedAt,
		Description: args.Description,
	}
	te, err := tx.CreateTimeEntry(ctx, te, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, te.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "time_entry", EntityID: te.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return te, &events.Event{ProjectID: w.ProjectID, Kind: events.KindTimeEntryCreated, Payload: events.TimeEntryPayload{TimeEntry: te}}, nil
}

func (h *Handler) updateTimeEntry(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(TimeEntryUpdateArgs)
	te, err := tx.UpdateTimeEntry(ctx, args.ID, args.ExpectedVersion, args.Description, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, te.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "time_entry", EntityID: te.ID, Action: types.ActivityUpdated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return te, &events.Event{ProjectID: w.ProjectID, Kind: events.KindTimeEntryUpdated, Payload: events.TimeEntryPayload{TimeEntry: te}}, nil
}

func (h *Handler) deleteTimeEntry(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(TimeEntryDeleteArgs)
	te, err := tx.DeleteTimeEntry(ctx, args.ID, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, te.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "time_entry", EntityID: te.ID, Action: types.ActivityDeleted, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return te, &events.Event{ProjectID: w.ProjectID, Kind: events.KindTimeEntryDeleted, Payload: events.TimeEntryPayload{TimeEntry: te}}, nil
}
