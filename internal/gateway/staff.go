// Package gateway is the clinician-facing side of the service: it
// authenticates staff against the directory, serves read-only views of
// finalized records, and leaves an audit entry for every access attempt.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/platform/auth"
)

var (
	// ErrStaffNotFound indicates the subject or key is not in the directory.
	ErrStaffNotFound = errors.New("staff member not found")

	// ErrStaffExists indicates an attempt to register a subject twice.
	ErrStaffExists = errors.New("staff member already exists")
)

// StaffMember is one entry in the authorized-staff directory. Subject is the
// stable login identifier carried in tokens; APIKeyHash is the SHA-256 hash
// of the member's API key, empty when none is issued.
type StaffMember struct {
	ID         uuid.UUID `json:"id"`
	Subject    string    `json:"subject"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	APIKeyHash string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// StaffDirectory is the authorized-staff directory. The gateway consults it
// on every record access; credentials alone are never sufficient.
type StaffDirectory interface {
	FindBySubject(ctx context.Context, subject string) (*StaffMember, error)
	FindByKeyHash(ctx context.Context, keyHash string) (*StaffMember, error)
	Create(ctx context.Context, member *StaffMember) error
	SetAPIKeyHash(ctx context.Context, subject, keyHash string) error
	SetActive(ctx context.Context, subject string, active bool) error
}

// KeyVerifier adapts a StaffDirectory to the auth middleware's API key hook.
type KeyVerifier struct {
	dir StaffDirectory
}

func NewKeyVerifier(dir StaffDirectory) *KeyVerifier {
	return &KeyVerifier{dir: dir}
}

// VerifyAPIKey implements auth.APIKeyVerifier.
func (v *KeyVerifier) VerifyAPIKey(ctx context.Context, keyHash string) (auth.Identity, error) {
	member, err := v.dir.FindByKeyHash(ctx, keyHash)
	if err != nil {
		return auth.Identity{}, err
	}
	if !member.Active {
		return auth.Identity{}, errors.New("staff member deactivated")
	}
	return auth.Identity{
		StaffID: member.ID,
		Subject: member.Subject,
		Name:    member.Name,
		Role:    member.Role,
	}, nil
}
