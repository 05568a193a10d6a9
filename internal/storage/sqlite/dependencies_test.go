package sqlite

import (
	"context"
	"testing"

	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func mustCreateWorkItem(t *testing.T, store *Store, projectID types.ID, title string) *types.WorkItem {
	t.Helper()
	var w *types.WorkItem
	err := store.WithinTransaction(context.Background(), func(tx storage.Tx) error {
		var err error
		w, err = tx.CreateWorkItem(context.Background(), &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: projectID, Title: title,
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("create work item %q: %v", title, err)
	}
	return w
}

func TestDependencyRejectsCycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	a := mustCreateWorkItem(t, store, proj.ID, "A")
	b := mustCreateWorkItem(t, store, proj.ID, "B")
	c := mustCreateWorkItem(t, store, proj.ID, "C")

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDependency(ctx, &types.Dependency{ID: idgen.New(), BlockingItemID: a.ID, BlockedItemID: b.ID, Type: types.DepBlocks}, "alice")
		return err
	})
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDependency(ctx, &types.Dependency{ID: idgen.New(), BlockingItemID: b.ID, BlockedItemID: c.ID, Type: types.DepBlocks}, "alice")
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDependency(ctx, &types.Dependency{ID: idgen.New(), BlockingItemID: c.ID, BlockedItemID: a.ID, Type: types.DepBlocks}, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindDependencyCycle {
		t.Fatalf("expected KindDependencyCycle, got %v", err)
	}
}

func TestRelatesToExemptFromCycleCheck(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	a := mustCreateWorkItem(t, store, proj.ID, "A")
	b := mustCreateWorkItem(t, store, proj.ID, "B")

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDependency(ctx, &types.Dependency{ID: idgen.New(), BlockingItemID: a.ID, BlockedItemID: b.ID, Type: types.DepRelatesTo}, "alice")
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDependency(ctx, &types.Dependency{ID: idgen.New(), BlockingItemID: b.ID, BlockedItemID: a.ID, Type: types.DepRelatesTo}, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("expected relates_to reverse edge to be allowed, got %v", err)
	}
}

func TestDependencyMustShareProject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	projA := mustCreateProject(t, store, "PROJA")
	projB := mustCreateProject(t, store, "PROJB")
	a := mustCreateWorkItem(t, store, projA.ID, "A")
	b := mustCreateWorkItem(t, store, projB.ID, "B")

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateDependency(ctx, &types.Dependency{ID: idgen.New(), BlockingItemID: a.ID, BlockedItemID: b.ID, Type: types.DepBlocks}, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindSameProjectRequired {
		t.Fatalf("expected KindSameProjectRequired, got %v", err)
	}
}
