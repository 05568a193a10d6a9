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

type SprintCreateArgs struct {
	ProjectID types.ID
	Name      string
	Goal      *string
	StartDate types.Timestamp
	EndDate   types.Timestamp
	Status    types.SprintStatus
}

type SprintUpdateArgs struct {
	ID              types.ID
	ExpectedVersion uint32
	Name            *string
	Goal            **string
	StartDate       *types.Timestamp
	EndDate         *types.Timestamp
	Velocity        **float64
}

type SprintTransitionArgs struct {
	ID              types.ID
	ExpectedVersion uint32
}

type SprintDeleteArgs struct {
	ID              types.ID
	ExpectedVersion uint32
}

func init() {
	gob.Register(SprintCreateArgs{})
	gob.Register(SprintUpdateArgs{})
	gob.Register(SprintTransitionArgs{})
	gob.Register(SprintDeleteArgs{})
}

func (h *Handler) handleSprintMutation(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	var result any
	var ev *events.Event
	err := h.store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		switch cmd.Variant {
		case CmdSprintCreate:
			result, ev, err = h.createSprint(ctx, tx, actor, cmd.Args)
		case CmdSprintUpdate:
			result, ev, err = h.updateSprint(ctx, tx, actor, cmd.Args)
		case CmdSprintStart:
			result, ev, err = h.transitionSprint(ctx, tx, actor, cmd.Args, types.SprintActive, events.KindSprintTransition)
		case CmdSprintComplete:
			result, ev, err = h.transitionSprint(ctx, tx, actor, cmd.Args, types.SprintCompleted, events.KindSprintTransition)
		case CmdSprintCancel:
			result, ev, err = h.transitionSprint(ctx, tx, actor, cmd.Args, types.SprintCancelled, events.KindSprintTransition)
		case CmdSprintDelete:
			result, ev, err = h.deleteSprint(ctx, tx, actor, cmd.Args)
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

func (h *Handler) createSprint(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(SprintCreateArgs)
	if args.Status == "" {
		args.Status = types.SprintPlanned
	}
	if err := validation.Chain(
		validation.NonEmpty("name", args.Name),
		validation.MonotoneDates(args.StartDate, args.EndDate),
		validation.SprintStatusValid(args.Status),
	); err != nil {
		return nil, nil, err
	}

	sp := &types.Sprint{
		ID:        idgen.New(),
		ProjectID: args.ProjectID,
		Name:      args.Name,
		Goal:      args.Goal,
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Status:    args.Status,
	}
	sp, err := tx.CreateSprint(ctx, sp, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "sprint", EntityID: sp.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return sp, &events.Event{ProjectID: sp.ProjectID, Kind: events.KindSprintCreated, Payload: events.SprintPayload{Sprint: sp}}, nil
}

func (h *Handler) updateSprint(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(SprintUpdateArgs)
	sp, err := tx.UpdateSprint(ctx, args.ID, args.ExpectedVersion, storage.SprintPatch{
		Name:      args.Name,
		Goal:      args.Goal,
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Velocity:  args.Velocity,
	}, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "sprint", EntityID: sp.ID, Action: types.ActivityUpdated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return sp, &events.Event{ProjectID: sp.ProjectID, Kind: events.KindSprintUpdated, Payload: events.SprintPayload{Sprint: sp}}, nil
}

func (h *Handler) transitionSprint(ctx context.Context, tx storage.Tx, actor string, rawArgs any, to types.SprintStatus, kind events.Kind) (any, *events.Event, error) {
	args, _ := rawArgs.(SprintTransitionArgs)
	sp, err := tx.TransitionSprint(ctx, args.ID, args.ExpectedVersion, to, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "sprint", EntityID: sp.ID, Action: types.ActivityUpdated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return sp, &events.Event{ProjectID: sp.ProjectID, Kind: kind, Payload: events.SprintPayload{Sprint: sp}}, nil
}

func (h *Handler) deleteSprint(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(SprintDeleteArgs)
	sp, err := tx.DeleteSprint(ctx, args.ID, args.ExpectedVersion, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "sprint", EntityID: sp.ID, Action: types.ActivityDeleted, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return sp, &events.Event{ProjectID: sp.ProjectID, Kind: events.KindSprintDeleted, Payload: events.SprintPayload{Sprint: sp}}, nil
}
