package sqlite

import (
	"context"
	"testing"

	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func TestCreateCommentRejectsEmptyContent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateComment(ctx, &types.Comment{ID: idgen.New(), WorkItemID: w.ID, Content: ""}, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindValidation {
		t.Fatalf("expected KindValidation, got %v", err)
	}
}

func TestUpdateAndDeleteComment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	var c *types.Comment
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.CreateComment(ctx, &types.Comment{ID: idgen.New(), WorkItemID: w.ID, Content: "hi"}, "alice")
		return err
	})

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.UpdateComment(ctx, c.ID, "edited", "alice")
		return err
	})
	if c.Content != "edited" {
		t.Fatalf("expected content updated, got %q", c.Content)
	}

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.DeleteComment(ctx, c.ID, "alice")
		return err
	})
	if _, err := store.GetComment(ctx, c.ID); err == nil {
		t.Fatal("expected deleted comment to be invisible")
	}
}
