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

type CommentCreateArgs struct {
	WorkItemID types.ID
	Content    string
}

type CommentUpdateArgs struct {
	ID      types.ID
	Content string
}

type CommentDeleteArgs struct {
	ID types.ID
}

func init() {
	gob.Register(CommentCreateArgs{})
	gob.Register(CommentUpdateArgs{})
	gob.Register(CommentDeleteArgs{})
}

func (h *Handler) handleCommentMutation(ctx context.Context, messageID, actor string, cmd Command) (any, error) {
	var result any
	var ev *events.Event
	err := h.store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		switch cmd.Variant {
		case CmdCommentCreate:
			result, ev, err = h.createComment(ctx, tx, actor, cmd.Args)
		case CmdCommentUpdate:
			result, ev, err = h.updateComment(ctx, tx, actor, cmd.Args)
		case CmdCommentDelete:
			result, ev, err = h.deleteComment(ctx, tx, actor, cmd.Args)
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

func (h *Handler) createComment(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(CommentCreateArgs)
	if err := validation.NonEmpty("content", args.Content)(); err != nil {
		return nil, nil, err
	}

	c := &types.Comment{ID: idgen.New(), WorkItemID: args.WorkItemID, Content: args.Content}
	c, err := tx.CreateComment(ctx, c, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, c.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "comment", EntityID: c.ID, Action: types.ActivityCreated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return c, &events.Event{ProjectID: w.ProjectID, Kind: events.KindCommentCreated, Payload: events.CommentPayload{Comment: c}}, nil
}

func (h *Handler) updateComment(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(CommentUpdateArgs)
	existing, err := tx.GetCommentTx(ctx, args.ID)
	if err != nil {
		return nil, nil, err
	}
	if existing.CreatedBy != actor {
		return nil, nil, types.NewError(types.KindUnauthorized, "only the comment's creator may edit it")
	}

	c, err := tx.UpdateComment(ctx, args.ID, args.Content, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, c.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "comment", EntityID: c.ID, Action: types.ActivityUpdated, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return c, &events.Event{ProjectID: w.ProjectID, Kind: events.KindCommentUpdated, Payload: events.CommentPayload{Comment: c}}, nil
}

func (h *Handler) deleteComment(ctx context.Context, tx storage.Tx, actor string, rawArgs any) (any, *events.Event, error) {
	args, _ := rawArgs.(CommentDeleteArgs)
	existing, err := tx.GetCommentTx(ctx, args.ID)
	if err != nil {
		return nil, nil, err
	}
	if existing.CreatedBy != actor {
		return nil, nil, types.NewError(types.KindUnauthorized, "only the comment's creator may delete it")
	}

	c, err := tx.DeleteComment(ctx, args.ID, actor)
	if err != nil {
		return nil, nil, err
	}
	w, err := tx.GetWorkItemTx(ctx, c.WorkItemID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.AppendActivityLog(ctx, &types.ActivityLogEntry{
		EntityType: "comment", EntityID: c.ID, Action: types.ActivityDeleted, UserID: actor,
	}); err != nil {
		return nil, nil, err
	}
	return c, &events.Event{ProjectID: w.ProjectID, Kind: events.KindCommentDeleted, Payload: events.CommentPayload{Comment: c}}, nil
}
