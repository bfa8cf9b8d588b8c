package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const staffCols = "id, subject, name, role, api_key_hash, active, created_at"

// PGDirectory is the Postgres-backed StaffDirectory.
type PGDirectory struct {
	pool *pgxpool.Pool
}

func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

func (d *PGDirectory) FindBySubject(ctx context.Context, subject string) (*StaffMember, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+staffCols+" FROM staff WHERE subject = $1", subject)
	return scanStaff(row)
}

func (d *PGDirectory) FindByKeyHash(ctx context.Context, keyHash string) (*StaffMember, error) {
	if keyHash == "" {
		return nil, ErrStaffNotFound
	}
	row := d.pool.QueryRow(ctx,
		"SELECT "+staffCols+" FROM staff WHERE api_key_hash = $1", keyHash)
	return scanStaff(row)
}

func (d *PGDirectory) Create(ctx context.Context, member *StaffMember) error {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	_, err := d.pool.Exec(ctx,
		`INSERT INTO staff (id, subject, name, role, api_key_hash, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		member.ID, member.Subject, member.Name, member.Role,
		member.APIKeyHash, member.Active, member.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrStaffExists
		}
		return fmt.Errorf("create staff member: %w", err)
	}
	return nil
}

func (d *PGDirectory) SetAPIKeyHash(ctx context.Context, subject, keyHash string) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE staff SET api_key_hash = $2 WHERE subject = $1", subject, keyHash)
	if err != nil {
		return fmt.Errorf("set staff api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaffNotFound
	}
	return nil
}

func (d *PGDirectory) SetActive(ctx context.Context, subject string, active bool) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE staff SET active = $2 WHERE subject = $1", subject, active)
	if err != nil {
		return fmt.Errorf("set staff active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaffNotFound
	}
	return nil
}

func scanStaff(row pgx.Row) (*StaffMember, error) {
	var m StaffMember
	err := row.Scan(&m.ID, &m.Subject, &m.Name, &m.Role,
		&m.APIKeyHash, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("scan staff member: %w", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}
