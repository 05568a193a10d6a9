package sqlite

import (
	"context"
	"testing"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func TestStartTimerStopsPriorRunningEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	var firstStarted *types.TimeEntry
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		firstStarted, _, err = tx.StartTimer(ctx, w.ID, "alice", nil)
		return err
	})
	if !firstStarted.Running() {
		t.Fatal("expected first entry to be running")
	}

	var secondStarted, stopped *types.TimeEntry
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		secondStarted, stopped, err = tx.StartTimer(ctx, w.ID, "alice", nil)
		return err
	})
	if stopped == nil || stopped.ID != firstStarted.ID {
		t.Fatalf("expected second StartTimer to stop the first entry, got %+v", stopped)
	}
	if stopped.Running() {
		t.Fatal("expected stopped entry to no longer be running")
	}
	if !secondStarted.Running() {
		t.Fatal("expected second entry to be running")
	}
}

func TestStopTimerRejectsOtherUsersEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	var started *types.TimeEntry
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		started, _, err = tx.StartTimer(ctx, w.ID, "alice", nil)
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.StopTimer(ctx, started.ID, "bob")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %v", err)
	}
}

func TestStopTimerIsIdempotentOnAlreadyStopped(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	var started *types.TimeEntry
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		started, _, err = tx.StartTimer(ctx, w.ID, "alice", nil)
		return err
	})

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.StopTimer(ctx, started.ID, "alice")
		return err
	})

	var te *types.TimeEntry
	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		te, err = tx.StopTimer(ctx, started.ID, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("expected stopping an already-stopped entry to be a no-op, got %v", err)
	}
	if te.Running() {
		t.Fatal("expected entry to remain stopped")
	}
}

func TestCreateTimeEntryRejectsOverlapWithRunningEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	var running *types.TimeEntry
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		running, _, err = tx.StartTimer(ctx, w.ID, "alice", nil)
		return err
	})

	ended := running.StartedAt + 3600
	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		te := &types.TimeEntry{
			ID:         types.NewID(),
			WorkItemID: w.ID,
			UserID:     "alice",
			StartedAt:  running.StartedAt - 1800,
			EndedAt:    &ended,
		}
		_, err := tx.CreateTimeEntry(ctx, te, "alice")
		return err
	})
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindValidation {
		t.Fatalf("expected KindValidation for overlap with running entry, got %v", err)
	}
}

func TestCreateTimeEntryAllowsNonOverlappingClosedEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	proj := mustCreateProject(t, store, "PROJ")
	w := mustCreateWorkItem(t, store, proj.ID, "Task")

	var running *types.TimeEntry
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		var err error
		running, _, err = tx.StartTimer(ctx, w.ID, "alice", nil)
		return err
	})

	started := running.StartedAt - 7200
	ended := running.StartedAt - 3600
	var created *types.TimeEntry
	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		te := &types.TimeEntry{
			ID:         types.NewID(),
			WorkItemID: w.ID,
			UserID:     "alice",
			StartedAt:  started,
			EndedAt:    &ended,
		}
		var err error
		created, err = tx.CreateTimeEntry(ctx, te, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("expected non-overlapping closed entry to be accepted, got %v", err)
	}
	if created.EndedAt == nil || *created.EndedAt != ended {
		t.Fatalf("expected entry to be created with ended_at %d, got %+v", ended, created)
	}
}
