package sqlite

import (
	"context"
	"testing"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

func TestRecordAndLookupIdempotency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithinTransaction(ctx, func(tx storage.Tx) error {
		return tx.RecordIdempotency(ctx, &types.IdempotencyRecord{
			MessageID: "msg-1", Operation: "project.create", SerializedResult: []byte("payload"),
		})
	})
	if err != nil {
		t.Fatalf("RecordIdempotency: %v", err)
	}

	rec, err := store.LookupIdempotency(ctx, "msg-1")
	if err != nil {
		t.Fatalf("LookupIdempotency: %v", err)
	}
	if rec == nil || rec.Operation != "project.create" || string(rec.SerializedResult) != "payload" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestLookupIdempotencyMissReturnsNil(t *testing.T) {
	store := openTestStore(t)
	rec, err := store.LookupIdempotency(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("LookupIdempotency: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestDuplicateMessageIDRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := func() error {
		return store.WithinTransaction(ctx, func(tx storage.Tx) error {
			return tx.RecordIdempotency(ctx, &types.IdempotencyRecord{
				MessageID: "msg-1", Operation: "project.create", SerializedResult: []byte("x"),
			})
		})
	}
	if err := record(); err != nil {
		t.Fatalf("first record: %v", err)
	}
	err := record()
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindIdempotencyMismatch {
		t.Fatalf("expected KindIdempotencyMismatch, got %v", err)
	}
}

func TestSweepIdempotencyDeletesOldRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		return tx.RecordIdempotency(ctx, &types.IdempotencyRecord{
			MessageID: "old", Operation: "project.create", SerializedResult: []byte("x"), CreatedAt: 100,
		})
	})
	store.WithinTransaction(ctx, func(tx storage.Tx) error {
		return tx.RecordIdempotency(ctx, &types.IdempotencyRecord{
			MessageID: "new", Operation: "project.create", SerializedResult: []byte("x"), CreatedAt: 10000,
		})
	})

	n, err := store.SweepIdempotency(ctx, 5000)
	if err != nil {
		t.Fatalf("SweepIdempotency: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row swept, got %d", n)
	}
	if rec, _ := store.LookupIdempotency(ctx, "new"); rec == nil {
		t.Fatal("expected new record to survive sweep")
	}
	if rec, _ := store.LookupIdempotency(ctx, "old"); rec != nil {
		t.Fatal("expected old record to be swept")
	}
}
