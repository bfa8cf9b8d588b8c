package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemDirectory is an in-memory StaffDirectory for dev mode and tests.
type MemDirectory struct {
	mu        sync.RWMutex
	bySubject map[string]*StaffMember
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{bySubject: make(map[string]*StaffMember)}
}

func (d *MemDirectory) FindBySubject(_ context.Context, subject string) (*StaffMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	member, ok := d.bySubject[subject]
	if !ok {
		return nil, ErrStaffNotFound
	}
	out := *member
	return &out, nil
}

func (d *MemDirectory) FindByKeyHash(_ context.Context, keyHash string) (*StaffMember, error) {
	if keyHash == "" {
		return nil, ErrStaffNotFound
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, member := range d.bySubject {
		if member.APIKeyHash == keyHash {
			out := *member
			return &out, nil
		}
	}
	return nil, ErrStaffNotFound
}

func (d *MemDirectory) Create(_ context.Context, member *StaffMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.bySubject[member.Subject]; ok {
		return ErrStaffExists
	}
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	stored := *member
	d.bySubject[member.Subject] = &stored
	return nil
}

func (d *MemDirectory) SetAPIKeyHash(_ context.Context, subject, keyHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	member, ok := d.bySubject[subject]
	if !ok {
		return ErrStaffNotFound
	}
	member.APIKeyHash = keyHash
	return nil
}

func (d *MemDirectory) SetActive(_ context.Context, subject string, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	member, ok := d.bySubject[subject]
	if !ok {
		return ErrStaffNotFound
	}
	member.Active = active
	return nil
}
