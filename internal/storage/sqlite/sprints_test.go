package sqlite

import (
	"context"
	"testing"

	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func TestSprintTransitionPlannedToActiveToCompleted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var sp *types.Sprint
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		sp, err = tx.CreateSprint(ctx, &types.Sprint{
			ID: idgen.New(), ProjectID: proj.ID, Name: "Sprint 1", StartDate: 1000, EndDate: 2000,
			Status: types.SprintPlanned,
		}, "alice")
		return err
	})
	if sp.Status != types.SprintPlanned {
		t.Fatalf("expected status planned, got %s", sp.Status)
	}

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		sp, err = tx.TransitionSprint(ctx, sp.ID, sp.Version, types.SprintActive, "alice")
		return err
	})
	if sp.Status != types.SprintActive {
		t.Fatalf("expected active, got %s", sp.Status)
	}

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		sp, err = tx.TransitionSprint(ctx, sp.ID, sp.Version, types.SprintCompleted, "alice")
		return err
	})
	if sp.Status != types.SprintCompleted {
		t.Fatalf("expected completed, got %s", sp.Status)
	}
}

func TestSprintCannotSkipToCompleted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var sp *types.Sprint
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		sp, err = tx.CreateSprint(ctx, &types.Sprint{
			ID: idgen.New(), ProjectID: proj.ID, Name: "Sprint 1", StartDate: 1000, EndDate: 2000,
			Status: types.SprintPlanned,
		}, "alice")
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.TransitionSprint(ctx, sp.ID, sp.Version, types.SprintCompleted, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindInvalidTransition {
		t.Fatalf("expected KindInvalidTransition, got %v", err)
	}
}

func TestOnlyOneActiveSprintPerProject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	var first *types.Sprint
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		first, err = tx.CreateSprint(ctx, &types.Sprint{
			ID: idgen.New(), ProjectID: proj.ID, Name: "S1", StartDate: 1000, EndDate: 2000,
			Status: types.SprintActive,
		}, "alice")
		return err
	})
	if first.Status != types.SprintActive {
		t.Fatalf("expected first sprint active, got %s", first.Status)
	}

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateSprint(ctx, &types.Sprint{
			ID: idgen.New(), ProjectID: proj.ID, Name: "S2", StartDate: 1000, EndDate: 2000,
			Status: types.SprintActive,
		}, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindConflictingActiveSprint {
		t.Fatalf("expected KindConflictingActiveSprint, got %v", err)
	}
}

func TestCreateSprintRejectsInvalidStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.CreateSprint(ctx, &types.Sprint{
			ID: idgen.New(), ProjectID: proj.ID, Name: "Sprint 1", StartDate: 1000, EndDate: 2000,
			Status: types.SprintStatus("bogus"),
		}, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindValidation {
		t.Fatalf("expected KindValidation for invalid sprint status, got %v", err)
	}
}
