package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/record"
)

// maxCreateAttempts bounds how many identifiers Submit will try when the
// store reports a collision.
const maxCreateAttempts = 3

const defaultStoreTimeout = 5 * time.Second

// Service accepts raw intake submissions and turns them into finalized,
// persisted patient records.
type Service struct {
	store        record.Store
	validator    *Validator
	normalizer   *Normalizer
	gen          record.Generator
	storeTimeout time.Duration
	log          zerolog.Logger
}

func NewService(store record.Store, validator *Validator, normalizer *Normalizer, storeTimeout time.Duration, log zerolog.Logger) *Service {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Service{
		store:        store,
		validator:    validator,
		normalizer:   normalizer,
		gen:          record.NewID,
		storeTimeout: storeTimeout,
		log:          log.With().Str("component", "intake").Logger(),
	}
}

// WithGenerator overrides the identifier source. Used by tests that need
// predictable or colliding identifiers.
func (s *Service) WithGenerator(gen record.Generator) *Service {
	s.gen = gen
	return s
}

// Submit normalizes and validates a candidate submission, then persists the
// resulting record. On success it returns the new record's identifier.
// Validation failures come back as a *ValidationError listing every offending
// field; storage failures come back wrapped so callers can pick them apart
// with errors.Is.
func (s *Service) Submit(ctx context.Context, candidate map[string]any) (record.PatientID, error) {
	if s.normalizer != nil {
		candidate = s.normalizer.Normalize(ctx, candidate)
	}

	draft, verr := s.validator.Validate(candidate)
	if verr != nil {
		return "", verr
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := s.gen()
		rec := draft.Clone()
		if err := rec.Finalize(id); err != nil {
			return "", fmt.Errorf("finalize record: %w", err)
		}

		err := s.create(ctx, rec)
		if err == nil {
			s.log.Info().Str("record_id", id.String()).Msg("intake submission stored")
			return id, nil
		}
		if !errors.Is(err, record.ErrDuplicateID) {
			s.log.Error().Err(err).Msg("intake submission failed to store")
			return "", err
		}
		s.log.Warn().Str("record_id", id.String()).Int("attempt", attempt+1).Msg("identifier collision, regenerating")
		lastErr = err
	}
	return "", fmt.Errorf("exhausted %d identifier attempts: %w", maxCreateAttempts, lastErr)
}

func (s *Service) create(ctx context.Context, rec *record.PatientRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.Create(ctx, rec)
}
