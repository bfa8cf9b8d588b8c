package record

import "github.com/google/uuid"

// PatientID is the opaque identifier a record is stored and retrieved by.
// It is generated from randomness alone and never derived from any
// demographic field.
type PatientID string

func (id PatientID) String() string { return string(id) }

// Generator produces fresh PatientIDs. The intake service takes one as a
// dependency so duplicate handling is testable; production wiring uses NewID.
type Generator func() PatientID

// NewID returns a random PatientID backed by UUIDv4 (122 bits of
// randomness). Safe to call from any number of concurrent patient sessions
// without coordination; the store detects the residual collision case at
// write time and the caller regenerates.
func NewID() PatientID {
	return PatientID(uuid.New().String())
}
