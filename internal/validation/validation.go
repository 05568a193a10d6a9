// Package validation holds the composable payload checks the command
// handler runs before opening a transaction.
package validation

import "github.com/pmcore/pmcored/internal/types"

// Validator checks one constraint and reports a *types.Error on failure.
type Validator func() error

// Chain runs validators in order and stops at the first failure.
func Chain(validators ...Validator) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// NonEmpty validates that a required string field is not blank.
func NonEmpty(field, value string) Validator {
	return func() error {
		if value == "" {
			return types.Validation("%s must not be empty", field)
		}
		return nil
	}
}

// MonotoneDates validates that end does not precede start.
func MonotoneDates(start, end types.Timestamp) Validator {
	return func() error {
		if end < start {
			return types.Validation("end_date must not precede start_date")
		}
		return nil
	}
}

// NonNegative validates an optional numeric field is absent or >= 0.
func NonNegative(field string, value *float64) Validator {
	return func() error {
		if value != nil && *value < 0 {
			return types.Validation("%s must not be negative", field)
		}
		return nil
	}
}

// WorkItemTypeValid validates item_type membership.
func WorkItemTypeValid(t types.WorkItemType) Validator {
	return func() error {
		if !t.Valid() {
			return types.Validation("item_type %q is not a recognized work item type", t)
		}
		return nil
	}
}

// WorkItemStatusValid validates status membership.
func WorkItemStatusValid(s types.WorkItemStatus) Validator {
	return func() error {
		if !s.Valid() {
			return types.Validation("status %q is not a recognized work item status", s)
		}
		return nil
	}
}

// PriorityValid validates priority membership.
func PriorityValid(p types.Priority) Validator {
	return func() error {
		if !p.Valid() {
			return types.Validation("priority %q is not a recognized priority", p)
		}
		return nil
	}
}

// ProjectStatusValid validates project status membership.
func ProjectStatusValid(s types.ProjectStatus) Validator {
	return func() error {
		if !s.Valid() {
			return types.Validation("status %q is not a recognized project status", s)
		}
		return nil
	}
}

// SprintStatusValid validates sprint status membership.
func SprintStatusValid(s types.SprintStatus) Validator {
	return func() error {
		if !s.Valid() {
			return types.Validation("status %q is not a recognized sprint status", s)
		}
		return nil
	}
}

// DependencyTypeValid validates dependency type membership.
func DependencyTypeValid(t types.DependencyType) Validator {
	return func() error {
		if !t.Valid() {
			return types.Validation("dependency type %q is not recognized", t)
		}
		return nil
	}
}

// NoSelfParent validates a work item is not its own parent.
func NoSelfParent(id types.ID, parentID *types.ID) Validator {
	return func() error {
		if parentID != nil && *parentID == id {
			return types.Validation("work item cannot be its own parent")
		}
		return nil
	}
}

// NoSelfDependency validates a work item does not depend on itself.
func NoSelfDependency(blocking, blocked types.ID) Validator {
	return func() error {
		if blocking == blocked {
			return types.Validation("a work item cannot depend on itself")
		}
		return nil
	}
}
