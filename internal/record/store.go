package record

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID indicates the record's ID already names a stored record.
	// The caller regenerates the ID and retries; the stored record is never
	// overwritten.
	ErrDuplicateID = errors.New("duplicate patient id")

	// ErrNotFound indicates no finalized record exists under the requested ID.
	ErrNotFound = errors.New("record not found")

	// ErrWriteFailure indicates the backend rejected or failed a write.
	ErrWriteFailure = errors.New("record write failed")

	// ErrTimeout indicates the operation exceeded its context deadline.
	ErrTimeout = errors.New("store operation timed out")
)

// Store persists finalized patient records keyed by PatientID.
//
// The contract is deliberately narrow: create, fetch-by-ID, and a single
// delete hook reserved for the retention policy. There is no update
// (finalized records are immutable) and no listing (the hospital portal
// must never enumerate patients). Backends must not grow either.
type Store interface {
	// Create persists rec under rec.ID. The record must be finalized.
	// Fails with ErrDuplicateID, ErrWriteFailure, or ErrTimeout.
	Create(ctx context.Context, rec *PatientRecord) error

	// Get returns the finalized record stored under id, or ErrNotFound.
	// Drafts and unassigned IDs are indistinguishable to the caller.
	Get(ctx context.Context, id PatientID) (*PatientRecord, error)

	// Delete removes the record stored under id, or returns ErrNotFound.
	Delete(ctx context.Context, id PatientID) error
}

// ctxErr maps an expired or canceled context onto the store taxonomy so no
// backend ever surfaces a bare context error.
func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
