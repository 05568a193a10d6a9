package rpc

import (
	"context"
	"encoding/gob"

	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

type DependencyCreateArgs struct {
	BlockingItemID types.ID
	BlockedItemID  types.ID
	Type           types.DependencyType
}

type DependencyDeleteArgs struct {
	ID types.ID
}

func init() {
	gob.Register(DependencyCreateArgs{})
	gob.Register(DependencyDeleteArgs{})
}

func (h *Handler) handleDependencyMutation(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	var result any
	var ev *events.Event
	err := h.store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		switch cmd.Variant {
		case CmdDependencyCreate:
			result, ev, err = h.createDependency(ctx, tx, actor, cmd.Args)
		case CmdDependencyDelete:
			result, ev, err = h.deleteDependency(ctx, tx, actor, cmd.Args)
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

func (h *Handler) createDependency(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(DependencyCreateArgs)
	d := &types.Dependency{
		ID:             idgen.New(),
		BlockingItemID: args.BlockingItemID,
		BlockedItemID:  args.BlockedItemID,
		Type:           args.Type,
	}
	d, err := tx.CreateDependency(ctx, d, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, d.BlockingItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "dependency", EntityID: d.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return d, &events.Event{ProjectID: w.ProjectID, Kind: events.KindDependencyCreated, Payload: events.DependencyPayload{Dependency: d}}, nil
}

func (h *Handler) deleteDependency(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(DependencyDeleteArgs)
	d, err := tx.DeleteDependency(ctx, args.ID, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, d.BlockingItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "dependency", EntityID: d.ID, Action: types.ActivityDeleted, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return d, &events.Event{ProjectID: w.ProjectID, Kind: events.KindDependencyDeleted, Payload: events.DependencyPayload{Dependency: d}}, nil
}
