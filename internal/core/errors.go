package core

import "fmt"

// NotFoundError reports an unknown snapshot, target, graph, or checkpoint ID.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports an operation blocked by an active reference or a
// duplicate registration.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// IntegrityError reports a content-hash mismatch detected before a restore.
type IntegrityError struct {
	BackupID string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for snapshot %s: hash %s does not match stored %s",
		e.BackupID, e.Actual, e.Expected)
}

// PreconditionError reports an operation attempted from an invalid state,
// such as failover on an unvalidated checkpoint.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// UnreachableError reports a network failure talking to a replication
// target. It is always recovered locally and recorded, never propagated as
// a fatal error for a whole replication call.
type UnreachableError struct {
	Target string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("target %s unreachable: %v", e.Target, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}
