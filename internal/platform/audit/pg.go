package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const auditCols = `id, staff_subject, staff_role, record_id, action, outcome,
	request_id, source_ip, user_agent, occurred_at`

// PGLog persists the audit trail in the lookup_audit table.
type PGLog struct {
	pool *pgxpool.Pool
}

func NewPGLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

// Record implements Recorder.
func (l *PGLog) Record(ctx context.Context, entry *Entry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO lookup_audit (
			staff_subject, staff_role, record_id, action, outcome,
			request_id, source_ip, user_agent, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	err := l.pool.QueryRow(ctx, query,
		entry.StaffSubject, entry.StaffRole, entry.RecordID, entry.Action, entry.Outcome,
		entry.RequestID, entry.SourceIP, entry.UserAgent, entry.OccurredAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Search implements Log. Results are newest first.
func (l *PGLog) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Entry, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	idx := 1
	add := func(clause string, value any) {
		where += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, value)
		idx++
	}

	if params.StaffSubject != "" {
		add("staff_subject = $%d", params.StaffSubject)
	}
	if params.RecordID != "" {
		add("record_id = $%d", params.RecordID)
	}
	if params.Action != "" {
		add("action = $%d", params.Action)
	}
	if params.Outcome != "" {
		add("outcome = $%d", params.Outcome)
	}
	if params.Start != nil {
		add("occurred_at >= $%d", *params.Start)
	}
	if params.End != nil {
		add("occurred_at <= $%d", *params.End)
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM lookup_audit WHERE 1=1" + where
	if err := l.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count entries: %w", err)
	}

	dataSQL := fmt.Sprintf(
		"SELECT %s FROM lookup_audit WHERE 1=1%s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d",
		auditCols, where, idx, idx+1,
	)
	rows, err := l.pool.Query(ctx, dataSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: search entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(
			&e.ID, &e.StaffSubject, &e.StaffRole, &e.RecordID, &e.Action, &e.Outcome,
			&e.RequestID, &e.SourceIP, &e.UserAgent, &e.OccurredAt,
		); err != nil {
			return nil, 0, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return entries, total, nil
}
