package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intake/intake/internal/platform/phi"
)

// pgStore is the PostgreSQL-backed Store. Each record section is serialized
// to JSON text; when a cipher is configured the JSON is encrypted before it
// reaches the row and the row is flagged encrypted.
type pgStore struct {
	pool   *pgxpool.Pool
	cipher phi.Cipher
}

// NewPGStore creates a Store backed by the given pool without encryption.
func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// NewPGStoreWithEncryption creates a Store that encrypts record sections at
// rest. Pass a nil cipher to disable encryption (equivalent to NewPGStore).
func NewPGStoreWithEncryption(pool *pgxpool.Pool, cipher phi.Cipher) Store {
	return &pgStore{pool: pool, cipher: cipher}
}

const recordCols = `id, status, created_at, encrypted,
	demographics, emergency_contact, medical_history, lifestyle_factors, screening_responses`

// Create implements Store.
func (s *pgStore) Create(ctx context.Context, rec *PatientRecord) error {
	if rec.Status != StatusFinalized {
		return fmt.Errorf("%w: record is %s, not finalized", ErrWriteFailure, rec.Status)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: empty patient id", ErrWriteFailure)
	}

	sections, err := s.packSections(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO patient_record (
			id, status, created_at, encrypted,
			demographics, emergency_contact, medical_history, lifestyle_factors, screening_responses
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		string(rec.ID), string(rec.Status), rec.CreatedAt, s.cipher != nil,
		sections[0], sections[1], sections[2], sections[3], sections[4],
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ctxErr(err)
		}
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}

// Get implements Store. Only finalized rows are visible; the filter lives in
// the query so a draft row could never leak even if one existed.
func (s *pgStore) Get(ctx context.Context, id PatientID) (*PatientRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM patient_record WHERE id = $1 AND status = 'finalized'`,
		string(id),
	)

	var (
		rec       PatientRecord
		recID     string
		status    string
		encrypted bool
		sections  [5]string
	)
	err := row.Scan(&recID, &status, &rec.CreatedAt, &encrypted,
		&sections[0], &sections[1], &sections[2], &sections[3], &sections[4])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ctxErr(err)
		}
		return nil, fmt.Errorf("record get: %w", err)
	}

	rec.ID = PatientID(recID)
	rec.Status = Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if err := s.unpackSections(&rec, encrypted, sections); err != nil {
		return nil, fmt.Errorf("record get: %w", err)
	}
	return &rec, nil
}

// Delete implements Store. This is the single erasure capability reserved
// for the retention policy.
func (s *pgStore) Delete(ctx context.Context, id PatientID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patient_record WHERE id = $1`, string(id))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ctxErr(err)
		}
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// packSections serializes the five clinical sections in column order,
// encrypting each when a cipher is configured.
func (s *pgStore) packSections(rec *PatientRecord) ([5]string, error) {
	var out [5]string
	parts := []interface{}{
		rec.Demographics,
		rec.EmergencyContact,
		rec.MedicalHistory,
		rec.LifestyleFactors,
		rec.ScreeningResponses,
	}
	for i, part := range parts {
		raw, err := json.Marshal(part)
		if err != nil {
			return out, fmt.Errorf("marshal section %d: %w", i, err)
		}
		text := string(raw)
		if s.cipher != nil {
			if text, err = s.cipher.Encrypt(text); err != nil {
				return out, fmt.Errorf("encrypt section %d: %w", i, err)
			}
		}
		out[i] = text
	}
	return out, nil
}

func (s *pgStore) unpackSections(rec *PatientRecord, encrypted bool, sections [5]string) error {
	if encrypted {
		if s.cipher == nil {
			return errors.New("row is encrypted but no cipher is configured")
		}
		for i := range sections {
			text, err := s.cipher.Decrypt(sections[i])
			if err != nil {
				return fmt.Errorf("decrypt section %d: %w", i, err)
			}
			sections[i] = text
		}
	}

	targets := []interface{}{
		&rec.Demographics,
		&rec.EmergencyContact,
		&rec.MedicalHistory,
		&rec.LifestyleFactors,
		&rec.ScreeningResponses,
	}
	for i, target := range targets {
		if err := json.Unmarshal([]byte(sections[i]), target); err != nil {
			return fmt.Errorf("unmarshal section %d: %w", i, err)
		}
	}
	return nil
}
