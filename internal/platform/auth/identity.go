package auth

import (
	"context"

	"github.com/google/uuid"
)

// Staff roles. A clinician may read records; an admin may additionally erase
// records and search the audit trail.
const (
	RoleClinician = "clinician"
	RoleAdmin     = "admin"
)

// Identity is the authenticated staff member attached to a request. It is
// derived from the presented credential; the gateway re-checks it against the
// staff directory before releasing any record data.
type Identity struct {
	StaffID uuid.UUID `json:"staff_id,omitempty"`
	Subject string    `json:"subject"`
	Name    string    `json:"name,omitempty"`
	Role    string    `json:"role"`
}

type contextKey string

const identityKey contextKey = "staff_identity"

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}
