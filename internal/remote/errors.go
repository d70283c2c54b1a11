// Package remote defines the narrow port through which the SDK reaches the
// hosted backend: four record operations plus the error taxonomy every layer
// above classifies against. The REST type implements the port against a
// PostgREST-style row API; tests substitute fakes.
package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound reports absence of a record. Absence is not necessarily a
// failure: the reconciler uses it productively when deciding whether to
// create association rows lazily.
var ErrNotFound = errors.New("record not found")

// TransportError wraps connectivity or backend-availability failures.
// Recoverable; callers may retry at their discretion.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthorizationError reports a policy rejection, typically a row-level
// security denial. Distinct from NotFound and never retried.
type AuthorizationError struct {
	Op     string
	Status int
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: not authorized (status %d)", e.Op, e.Status)
}

// ConflictError reports a uniqueness violation on insert. The reconciler
// treats it as "a concurrent actor won the race" and re-reads instead of
// failing.
type ConflictError struct {
	Op         string
	Constraint string
}

func (e *ConflictError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: conflict on %s", e.Op, e.Constraint)
	}
	return fmt.Sprintf("%s: conflict", e.Op)
}

// TableMissingError reports that the backing table for an entity type does
// not exist (undefined_table, SQLSTATE 42P01). The reconciler parks the
// entity type in a permanently-unavailable sub-state instead of re-issuing
// doomed requests.
type TableMissingError struct {
	EntityType string
}

func (e *TableMissingError) Error() string {
	return fmt.Sprintf("backing table for %q does not exist", e.EntityType)
}

// IsNotFound reports whether err signals record absence.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsTransport reports whether err is a connectivity/backend failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAuthorization reports whether err is a policy rejection.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsTableMissing reports whether err signals an undefined backing table.
func IsTableMissing(err error) bool {
	var tm *TableMissingError
	return errors.As(err, &tm)
}

// IsRecoverable classifies err for retry policies: transport failures are
// worth retrying, everything else in the taxonomy is a definitive answer.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return IsTransport(err)
}
