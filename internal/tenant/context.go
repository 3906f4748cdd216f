// Package tenant carries the per-request {tenantId, userId, isAdmin} triple that every
// Storage Gateway unit of work is bound to for row-level security.
package tenant

import "github.com/google/uuid"

// Context is threaded explicitly through every call into the Storage Gateway — never
// recovered from process-wide or goroutine-local state. The zero value is invalid: it
// carries an empty TenantID, which BeginUnit rejects with ErrAuthConfiguration.
type Context struct {
	TenantID      uuid.UUID
	UserID        uuid.UUID
	IsAdmin       bool
	CorrelationID string
}

// IsValid reports whether this Context carries a usable tenant identity.
func (c Context) IsValid() bool {
	return c.TenantID != uuid.Nil
}

// System returns a Context for background work (the Expiry Scheduler)
// acting on behalf of a given tenant without an authenticated user.
func System(tenantID uuid.UUID) Context {
	return Context{TenantID: tenantID, IsAdmin: true, CorrelationID: "system"}
}
