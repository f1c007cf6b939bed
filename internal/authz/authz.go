// Package authz provides the authorization context passed to every store
// operation.
//
// The reference deployment relied on ambient row-level security policies that
// allowed every operation for every caller. Instead, each store call takes an
// explicit capability context, so the authorization decision is visible at
// the call site and testable without a database.
package authz

import (
	"errors"
	"fmt"
)

// Capability is a bit set of operations a caller may perform.
type Capability uint8

const (
	// CapRead allows similarity search and counting.
	CapRead Capability = 1 << iota

	// CapWrite allows inserting and deleting individual records.
	CapWrite

	// CapAdmin allows bulk deletion.
	CapAdmin
)

// ErrPermissionDenied indicates the caller lacks a required capability.
// Non-retryable; the caller must authenticate with a stronger token.
var ErrPermissionDenied = errors.New("permission denied")

// Context identifies a caller and the capabilities granted to it.
// The zero value grants nothing.
type Context struct {
	principal string
	caps      Capability
}

// NewContext creates an authorization context for the given principal.
func NewContext(principal string, caps Capability) Context {
	return Context{principal: principal, caps: caps}
}

// Permissive returns a context with every capability. This reproduces the
// allow-all policy of the reference schema and should only be used when no
// auth tokens are configured; callers are expected to log its use.
func Permissive() Context {
	return Context{principal: "anonymous", caps: CapRead | CapWrite | CapAdmin}
}

// ReadOnly returns a context limited to read operations.
func ReadOnly(principal string) Context {
	return Context{principal: principal, caps: CapRead}
}

// Principal returns the caller identity, or "anonymous" if unset.
func (c Context) Principal() string {
	if c.principal == "" {
		return "anonymous"
	}
	return c.principal
}

// Can reports whether the context grants all bits of required.
func (c Context) Can(required Capability) bool {
	return c.caps&required == required
}

// Require returns ErrPermissionDenied (wrapped with the principal and the
// missing capability) unless the context grants required.
func (c Context) Require(required Capability) error {
	if c.Can(required) {
		return nil
	}
	return fmt.Errorf("%w: principal %q lacks %s", ErrPermissionDenied, c.Principal(), required)
}

// String returns a human-readable capability list for error messages.
func (c Capability) String() string {
	switch c {
	case CapRead:
		return "read"
	case CapWrite:
		return "write"
	case CapAdmin:
		return "admin"
	}

	out := ""
	for _, part := range []struct {
		bit  Capability
		name string
	}{{CapRead, "read"}, {CapWrite, "write"}, {CapAdmin, "admin"}} {
		if c&part.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += part.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}
