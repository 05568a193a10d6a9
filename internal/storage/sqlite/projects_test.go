package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetProject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var created *types.Project
	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		p := &types.Project{ID: idgen.New(), Title: "Core", Key: "CORE", Status: types.ProjectActive}
		var err error
		created, err = tx.CreateProject(ctx, p, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("expected version 1, got %d", created.Version)
	}

	got, err := store.GetProject(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Title != "Core" || got.Key != "CORE" {
		t.Errorf("unexpected project: %+v", got)
	}
}

func TestUpdateProjectVersionConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var created *types.Project
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		p := &types.Project{ID: idgen.New(), Title: "Core", Key: "CORE", Status: types.ProjectActive}
		var err error
		created, err = tx.CreateProject(ctx, p, "alice")
		return err
	})

	newTitle := "Renamed"
	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.UpdateProject(ctx, created.ID, created.Version+1, storage.ProjectPatch{Title: &newTitle}, "alice")
		return err
	})
	if err == nil {
		t.Fatal("expected version conflict error")
	}
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindVersionConflict {
		t.Fatalf("expected KindVersionConflict, got %v", err)
	}
}

func TestDuplicateProjectKeyRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mk := func() error {
		return store.WithinTransaction(ctx, func(tx storage.Tx) error {
			p := &types.Project{ID: idgen.New(), Title: "Core", Key: "CORE", Status: types.ProjectActive}
			_, err := tx.CreateProject(ctx, p, "alice")
			return err
		})
	}
	if err := mk(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := mk(); err == nil {
		t.Fatal("expected duplicate key rejection")
	}
}

func TestDeleteProjectIsSoftDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var created *types.Project
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		p := &types.Project{ID: idgen.New(), Title: "Core", Key: "CORE", Status: types.ProjectActive}
		var err error
		created, err = tx.CreateProject(ctx, p, "alice")
		return err
	})

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		_, err := tx.DeleteProject(ctx, created.ID, created.Version, "alice")
		return err
	})
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	if _, err := store.GetProject(ctx, created.ID); err == nil {
		t.Fatal("expected deleted project to be invisible to GetProject")
	}
}
