package validation

import (
	"testing"

	"github.com/pmcore/pmcored/internal/idgen"
	"github.com/pmcore/pmcored/internal/types"
)

func TestChainStopsAtFirstFailure(t *testing.T) {
	calls := 0
	ok := func() error { calls++; return nil }
	fail := func() error { calls++; return types.Validation("boom") }

	err := Chain(Validator(ok), Validator(fail), Validator(ok))
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 2 {
		t.Fatalf("expected Chain to stop after the failing validator, ran %d", calls)
	}
}

func TestNonEmptyRejectsBlank(t *testing.T) {
	if err := NonEmpty("title", "")(); err == nil {
		t.Fatal("expected blank title to be rejected")
	}
	if err := NonEmpty("title", "Core")(); err != nil {
		t.Fatalf("expected non-blank title to pass, got %v", err)
	}
}

func TestMonotoneDatesRejectsEndBeforeStart(t *testing.T) {
	if err := MonotoneDates(100, 50)(); err == nil {
		t.Fatal("expected end before start to be rejected")
	}
	if err := MonotoneDates(100, 100)(); err != nil {
		t.Fatalf("expected equal dates to pass, got %v", err)
	}
}

func TestWorkItemTypeValid(t *testing.T) {
	if err := WorkItemTypeValid(types.ItemTask)(); err != nil {
		t.Fatalf("expected task to be valid, got %v", err)
	}
	if err := WorkItemTypeValid(types.WorkItemType("bogus"))(); err == nil {
		t.Fatal("expected unknown item type to be rejected")
	}
}

func TestNoSelfParentAndNoSelfDependency(t *testing.T) {
	id := idgen.New()
	other := idgen.New()

	if err := NoSelfParent(id, &id)(); err == nil {
		t.Fatal("expected self-parent to be rejected")
	}
	if err := NoSelfParent(id, &other)(); err != nil {
		t.Fatalf("expected distinct parent to pass, got %v", err)
	}
	if err := NoSelfParent(id, nil)(); err != nil {
		t.Fatalf("expected nil parent to pass, got %v", err)
	}

	if err := NoSelfDependency(id, id)(); err == nil {
		t.Fatal("expected self-dependency to be rejected")
	}
	if err := NoSelfDependency(id, other)(); err != nil {
		t.Fatalf("expected distinct dependency to pass, got %v", err)
	}
}
