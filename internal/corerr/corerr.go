// Package corerr defines the error taxonomy shared by every core component.
//
// Errors are built with fmt.Errorf and %w, consistent across every package
// (internal/rig, internal/hooks, and the rest). Callers test the kind with
// errors.Is against the sentinel Kind values rather than matching message
// strings.
package corerr

import (
	"errors"
	"fmt"
)

// Kind is a sentinel identifying one of the taxonomy's error categories.
// Kinds are comparable with errors.Is once wrapped via Wrap.
type Kind struct {
	name string
}

func (k Kind) Error() string { return k.name }

var (
	// NotFound: Rig/Crew/Task/Actor/Hook/Worker/Run missing by id.
	NotFound = Kind{"not found"}
	// PreconditionFailed: hook leased, hook has no current work for resume,
	// deleting an active hook, convoy_land on non-owned convoy, dirty
	// working tree on refinery.
	PreconditionFailed = Kind{"precondition failed"}
	// ResourceNotFound: agent binary cannot be resolved, CLI path missing.
	ResourceNotFound = Kind{"resource not found"}
	// IntegrationFailed: git subprocess returned non-zero.
	IntegrationFailed = Kind{"integration failed"}
	// SpawnFailed: PTY open failed or child spawn failed.
	SpawnFailed = Kind{"spawn failed"}
	// ValidationFailed: empty title, missing required template variable.
	ValidationFailed = Kind{"validation failed"}
	// Transient: audit-log write error, log-flush error — swallowed and
	// logged, never surfaced to the caller.
	Transient = Kind{"transient"}
)

// Wrap returns an error reporting msg that satisfies errors.Is(err, kind).
func Wrap(kind Kind, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// HookLeased is returned by dispatch when the target hook is Running or
// Assigned with an active lease.
type HookLeased struct {
	ExpiresAt string
}

func (e *HookLeased) Error() string {
	return fmt.Sprintf("hook leased until %s", e.ExpiresAt)
}

func (e *HookLeased) Unwrap() error { return PreconditionFailed }

// AgentNotFound is returned when an agent binary cannot be resolved.
type AgentNotFound struct {
	AgentType string
}

func (e *AgentNotFound) Error() string {
	return fmt.Sprintf("agent %q not found on PATH or at the given cli path", e.AgentType)
}

func (e *AgentNotFound) Unwrap() error { return ResourceNotFound }
