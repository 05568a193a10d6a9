package sqlite

import (
	"context"
	"testing"

	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func mustCreateProject(t *testing.T, store *Store, key string) *types.Project {
	t.Helper()
	var p *types.Project
	err := store.WithinTransaction(context.Background(), func(tx storage.Tx) error {
		var err error
		p, err = tx.CreateProject(context.Background(), &types.Project{
			ID: idgen.New(), Title: "Proj " + key, Key: key, Status: types.ProjectActive,
		}, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestCreateWorkItemAssignsSequentialItemNumber(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var first, second *types.WorkItem
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		first, err = tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "First",
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		second, err = tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "Second",
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})

	if first.ItemNumber != 1 || second.ItemNumber != 2 {
		t.Fatalf("expected sequential numbers 1,2; got %d,%d", first.ItemNumber, second.ItemNumber)
	}
}

func TestUpdateWorkItemReturnsFieldChanges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var w *types.WorkItem
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		w, err = tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "Before",
			Status: types.StatusTodo, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})

	newTitle := "After"
	newStatus := types.StatusInProgress
	var changes []types.FieldChange
	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		_, changes, err = tx.UpdateWorkItem(ctx, w.ID, w.Version, storage.WorkItemPatch{
			Title: &newTitle, Status: &newStatus,
		}, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("UpdateWorkItem: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 field changes, got %d: %+v", len(changes), changes)
	}
}

func TestUpdateWorkItemNoopProducesNoChanges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var w *types.WorkItem
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		w, err = tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "Same",
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})

	sameTitle := "Same"
	var changes []types.FieldChange
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		_, changes, err = tx.UpdateWorkItem(ctx, w.ID, w.Version, storage.WorkItemPatch{Title: &sameTitle}, "alice")
		return err
	})
	if len(changes) != 0 {
		t.Fatalf("expected no field changes, got %+v", changes)
	}
}

func TestWorkItemParentMustShareProject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	projA := mustCreateProject(t, store, "PROJA")
	projB := mustCreateProject(t, store, "PROJB")

	var parent *types.WorkItem
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		parent, err = tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemStory, ProjectID: projA.ID, Title: "Parent",
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: projB.ID, ParentID: &parent.ID, Title: "Child",
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})
	if err == nil {
		t.Fatal("expected cross-project parent to be rejected")
	}
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindSameProjectRequired {
		t.Fatalf("expected KindSameProjectRequired, got %v", err)
	}
}

func TestEpicCannotCarrySprint(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	sprintID := idgen.New()

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemEpic, ProjectID: proj.ID, Title: "Epic", SprintID: &sprintID,
		}, "alice")
		return err
	})
	if err == nil {
		t.Fatal("expected epic+sprint_id rejection")
	}
}

func TestDeleteWorkItemVersionConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var w *types.WorkItem
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		w, err = tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "Task",
			Status: types.StatusBacklog, Priority: types.PriorityMedium,
		}, "alice")
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.DeleteWorkItem(ctx, w.ID, w.Version+1, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindVersionConflict {
		t.Fatalf("expected KindVersionConflict, got %v", err)
	}
}

func TestCreateWorkItemRejectsInvalidStatusAndPriority(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "Task",
			Status: types.WorkItemStatus("bogus"), Priority: types.PriorityMedium,
		}, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindValidation {
		t.Fatalf("expected KindValidation for invalid status, got %v", err)
	}

	err = store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateWorkItem(ctx, &types.WorkItem{
			ID: idgen.New(), ItemType: types.ItemTask, ProjectID: proj.ID, Title: "Task",
			Status: types.StatusBacklog, Priority: types.Priority("bogus"),
		}, "alice")
		return err
	})
	e, ok = types.AsError(err)
	if !ok || e.Kind != types.KindValidation {
		t.Fatalf("expected KindValidation for invalid priority, got %v", err)
	}
}
