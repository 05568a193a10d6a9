// Package types holds the domain model shared by storage, rpc, and broadcast.
package types

import "fmt"

// Kind is the machine-readable error classification returned in reply frames.
type Kind string

const (
	KindValidation              Kind = "validation"
	KindNotFound                Kind = "not_found"
	KindVersionConflict         Kind = "version_conflict"
	KindInvalidTransition        Kind = "invalid_transition"
	KindDependencyCycle         Kind = "dependency_cycle"
	KindConflictingActiveSprint Kind = "conflicting_active_sprint"
	KindSameProjectRequired     Kind = "same_project_required"
	KindUniqueViolation         Kind = "unique_violation"
	KindForeignKeyViolation     Kind = "foreign_key_violation"
	KindIdempotencyMismatch     Kind = "idempotency_mismatch"
	KindUnauthorized            Kind = "unauthorized"
	KindRequestTimeout          Kind = "request_timeout"
	KindSlowSubscriber          Kind = "slow_subscriber"
	KindStorage                 Kind = "storage"
	KindInternal                Kind = "internal"
)

// Error is the typed error every store and handler operation returns.
// It carries enough context for the reply frame without exposing internals.
type Error struct {
	Kind    Kind
	Message string
	// CurrentVersion is populated for KindVersionConflict so the client can refetch.
	CurrentVersion uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, format, args...)
}

func Validation(format string, args ...any) *Error {
	return NewError(KindValidation, format, args...)
}

func VersionConflict(current uint32) *Error {
	return &Error{Kind: KindVersionConflict, Message: "version mismatch", CurrentVersion: current}
}

// AsError extracts a *Error from err, returning (nil, false) for anything else.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
