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

// ProjectCreateArgs carries the fields a client supplies to create a project.
type ProjectCreateArgs struct {
	Title       string
	Description *string
	Key         string
}

// ProjectUpdateArgs carries an optional-field patch plus the version the
// client last observed.
type ProjectUpdateArgs struct {
	ID              types.ID
	ExpectedVersion uint32
	Title           *string
	Description     *string
	Key             *string
	Status          *types.ProjectStatus
}

// ProjectDeleteArgs identifies the project and the version the client last observed.
type ProjectDeleteArgs struct {
	ID              types.ID
	ExpectedVersion uint32
}

func init() {
	gob.Register(ProjectCreateArgs{})
	gob.Register(ProjectUpdateArgs{})
	gob.Register(ProjectDeleteArgs{})
}

func (h *Handler) handleProjectMutation(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	var result any
	var ev *events.Event
	err := h.store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		switch cmd.Variant {
		case CmdProjectCreate:
			result, ev, err = h.createProject(ctx, tx, actor, cmd.Args)
		case CmdProjectUpdate:
			result, ev, err = h.updateProject(ctx, tx, actor, cmd.Args)
		case CmdProjectDelete:
			result, ev, err = h.deleteProject(ctx, tx, actor, cmd.Args)
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

func (h *Handler) createProject(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(ProjectCreateArgs)
	if err := validation.Chain(
		validation.NonEmpty("title", args.Title),
		validation.NonEmpty("key", args.Key),
	); err != nil {
		return nil, nil, err
	}

	p := &types.Project{
		ID:          idgen.New(),
		Title:       args.Title,
		Description: args.Description,
		Key:         args.Key,
	}
	p, err := tx.CreateProject(ctx, p, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "project", EntityID: p.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return p, &events.Event{ProjectID: p.ID, Kind: events.KindProjectCreated, Payload: events.ProjectPayload{Project: p}}, nil
}

func (h *Handler) updateProject(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(ProjectUpdateArgs)
	if args.Status != nil {
		if err := validation.ProjectStatusValid(*args.Status)(); err != nil {
			return nil, nil, err
		}
	}

	p, err := tx.UpdateProject(ctx, args.ID, args.ExpectedVersion, storage.ProjectPatch{
		Title:       args.Title,
		Description: args.Description,
		Key:         args.Key,
		Status:      args.Status,
	}, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "project", EntityID: p.ID, Action: types.ActivityUpdated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return p, &events.Event{ProjectID: p.ID, Kind: events.KindProjectUpdated, Payload: events.ProjectPayload{Project: p}}, nil
}

func (h *Handler) deleteProject(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(ProjectDeleteArgs)
	p, err := tx.DeleteProject(ctx, args.ID, args.ExpectedVersion, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "project", EntityID: p.ID, Action: types.ActivityDeleted, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return p, &events.Event{ProjectID: p.ID, Kind: events.KindProjectDeleted, Payload: events.ProjectPayload{Project: p}}, nil
}
