// Package audit records every staff access to patient records. The trail is
// append-only: entries are written on success and on every failure, and
// nothing in the serving path ever deletes or rewrites them.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the trail.
const (
	ActionLookup = "lookup"
	ActionErase  = "erase"
)

// Outcomes. Every access attempt lands in the trail exactly once, whatever
// its result.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeUnauthorized = "unauthorized"
	OutcomeTimeout      = "timeout"
	OutcomeError        = "error"
)

// Entry is one access attempt. RecordID is the opaque patient record
// identifier as presented by the caller; it is stored even when no such
// record exists, so probing shows up in the trail.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	StaffSubject string    `json:"staff_subject"`
	StaffRole    string    `json:"staff_role"`
	RecordID     string    `json:"record_id"`
	Action       string    `json:"action"`
	Outcome      string    `json:"outcome"`
	RequestID    string    `json:"request_id,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Recorder persists audit entries. Recording must never block a lookup for
// long; callers treat record failures as loggable, not fatal.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// SearchParams filter the trail. Zero-value fields match everything.
type SearchParams struct {
	StaffSubject string
	RecordID     string
	Action       string
	Outcome      string
	Start        *time.Time
	End          *time.Time
}

// Log is a recorder whose entries can also be searched, newest first.
type Log interface {
	Recorder
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Entry, int, error)
}

func (e *Entry) matches(params SearchParams) bool {
	if params.StaffSubject != "" && e.StaffSubject != params.StaffSubject {
		return false
	}
	if params.RecordID != "" && e.RecordID != params.RecordID {
		return false
	}
	if params.Action != "" && e.Action != params.Action {
		return false
	}
	if params.Outcome != "" && e.Outcome != params.Outcome {
		return false
	}
	if params.Start != nil && e.OccurredAt.Before(*params.Start) {
		return false
	}
	if params.End != nil && e.OccurredAt.After(*params.End) {
		return false
	}
	return true
}
