package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/audit"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/internal/record"
)

// Access failures surfaced by the gateway. They are deliberately coarse: no
// error distinguishes an unknown identifier from one the caller may not see,
// and credential failures read the same whether or not the record exists.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("record not found")
	ErrTimeout      = errors.New("lookup timed out")
)

const (
	defaultStoreTimeout = 5 * time.Second
	auditWriteTimeout   = 2 * time.Second
)

// RequestMeta carries request attribution into the audit trail.
type RequestMeta struct {
	RequestID string
	SourceIP  string
	UserAgent string
}

// Service mediates all clinician access to stored records.
type Service struct {
	store        record.Store
	staff        StaffDirectory
	trail        audit.Log
	storeTimeout time.Duration
	log          zerolog.Logger
}

func NewService(store record.Store, staff StaffDirectory, trail audit.Log, storeTimeout time.Duration, log zerolog.Logger) *Service {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Service{
		store:        store,
		staff:        staff,
		trail:        trail,
		storeTimeout: storeTimeout,
		log:          log.With().Str("component", "gateway").Logger(),
	}
}

// Lookup returns the clinical view of a finalized record. The caller's
// identity is re-resolved against the staff directory on every call, and the
// attempt is audited whatever the outcome.
func (s *Service) Lookup(ctx context.Context, ident auth.Identity, id record.PatientID, meta RequestMeta) (*ClinicalView, error) {
	member, err := s.verifyStaff(ctx, ident, auth.RoleClinician)
	if err != nil {
		s.log.Warn().Err(err).Str("subject", ident.Subject).Msg("staff verification failed")
		s.audit(ctx, nil, ident, id, audit.ActionLookup, audit.OutcomeUnauthorized, meta)
		return nil, ErrUnauthorized
	}

	getCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rec, err := s.store.Get(getCtx, id)
	if err != nil {
		switch {
		case errors.Is(err, record.ErrNotFound):
			s.audit(ctx, member, ident, id, audit.ActionLookup, audit.OutcomeNotFound, meta)
			return nil, ErrNotFound
		case errors.Is(err, record.ErrTimeout):
			s.audit(ctx, member, ident, id, audit.ActionLookup, audit.OutcomeTimeout, meta)
			return nil, ErrTimeout
		default:
			s.audit(ctx, member, ident, id, audit.ActionLookup, audit.OutcomeError, meta)
			return nil, fmt.Errorf("load record: %w", err)
		}
	}

	s.audit(ctx, member, ident, id, audit.ActionLookup, audit.OutcomeSuccess, meta)
	return NewClinicalView(rec), nil
}

// Erase removes a record permanently. Admin only; the attempt is audited
// like any other access.
func (s *Service) Erase(ctx context.Context, ident auth.Identity, id record.PatientID, meta RequestMeta) error {
	member, err := s.verifyStaff(ctx, ident)
	if err != nil {
		s.log.Warn().Err(err).Str("subject", ident.Subject).Msg("staff verification failed")
		s.audit(ctx, nil, ident, id, audit.ActionErase, audit.OutcomeUnauthorized, meta)
		return ErrUnauthorized
	}

	delCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.Delete(delCtx, id); err != nil {
		switch {
		case errors.Is(err, record.ErrNotFound):
			s.audit(ctx, member, ident, id, audit.ActionErase, audit.OutcomeNotFound, meta)
			return ErrNotFound
		case errors.Is(err, record.ErrTimeout):
			s.audit(ctx, member, ident, id, audit.ActionErase, audit.OutcomeTimeout, meta)
			return ErrTimeout
		default:
			s.audit(ctx, member, ident, id, audit.ActionErase, audit.OutcomeError, meta)
			return fmt.Errorf("delete record: %w", err)
		}
	}

	s.audit(ctx, member, ident, id, audit.ActionErase, audit.OutcomeSuccess, meta)
	return nil
}

// SearchAudit returns matching trail entries, newest first, plus the total
// match count for pagination. Admin only.
func (s *Service) SearchAudit(ctx context.Context, ident auth.Identity, params audit.SearchParams, limit, offset int) ([]*audit.Entry, int, error) {
	if _, err := s.verifyStaff(ctx, ident); err != nil {
		s.log.Warn().Err(err).Str("subject", ident.Subject).Msg("staff verification failed")
		return nil, 0, ErrUnauthorized
	}

	entries, total, err := s.trail.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit trail: %w", err)
	}
	return entries, total, nil
}

// verifyStaff re-resolves the identity against the directory. Token claims
// are not trusted for authorization: the directory row is authoritative, so
// a member deactivated after their token was issued is refused. Admins pass
// every role check; with no roles listed only admins pass.
func (s *Service) verifyStaff(ctx context.Context, ident auth.Identity, roles ...string) (*StaffMember, error) {
	if ident.Subject == "" {
		return nil, errors.New("no authenticated identity")
	}
	member, err := s.staff.FindBySubject(ctx, ident.Subject)
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, errors.New("staff member deactivated")
	}
	if member.Role == auth.RoleAdmin {
		return member, nil
	}
	for _, role := range roles {
		if member.Role == role {
			return member, nil
		}
	}
	return nil, fmt.Errorf("role %q not permitted", member.Role)
}

// audit records the attempt fail-open: a failed trail write is logged loudly
// but never fails the request it describes. The write runs on a detached
// context so an already-expired lookup still leaves a trail entry, and every
// entry is mirrored into the structured log.
func (s *Service) audit(ctx context.Context, member *StaffMember, ident auth.Identity, id record.PatientID, action, outcome string, meta RequestMeta) {
	subject, role := ident.Subject, ident.Role
	if member != nil {
		subject, role = member.Subject, member.Role
	}

	entry := &audit.Entry{
		StaffSubject: subject,
		StaffRole:    role,
		RecordID:     id.String(),
		Action:       action,
		Outcome:      outcome,
		RequestID:    meta.RequestID,
		SourceIP:     meta.SourceIP,
		UserAgent:    meta.UserAgent,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.trail.Record(writeCtx, entry); err != nil {
		s.log.Error().Err(err).
			Str("staff_subject", subject).
			Str("record_id", entry.RecordID).
			Str("action", action).
			Str("outcome", outcome).
			Msg("audit write failed")
	}

	s.log.Info().
		Str("type", "record_access").
		Str("staff_subject", subject).
		Str("staff_role", role).
		Str("record_id", entry.RecordID).
		Str("action", action).
		Str("outcome", outcome).
		Str("request_id", meta.RequestID).
		Str("source_ip", meta.SourceIP).
		Msg("record access")
}
