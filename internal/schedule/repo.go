package schedule

import (
	"context"
	"database/sql"
	"errors"
)

// ErrEntryNotFound indicates the referenced template entry does not exist.
var ErrEntryNotFound = errors.New("schedule: entry not found")

// Repository reads schedule template entries from Postgres. The rows are
// owned by the administrative collaborator; the core only reads them, plus
// a create used for seeding.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const entryColumns = `id, day_of_week, week_parity, start_time, end_time, subject, group_name, room, owner_id`

// GetEntry returns a single template entry by id.
func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries WHERE id = $1
	`, id)
	var e Entry
	if err := scanEntry(row, &e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

// ListByOwner returns a presenter's template entries.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]Entry, error) {
	return r.list(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries WHERE owner_id = $1
		ORDER BY day_of_week, start_time, id
	`, ownerID)
}

// ListByGroup returns a group's template entries.
func (r *Repository) ListByGroup(ctx context.Context, groupName string) ([]Entry, error) {
	return r.list(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries WHERE group_name = $1
		ORDER BY day_of_week, start_time, id
	`, groupName)
}

// ListAll returns every template entry.
func (r *Repository) ListAll(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries
		ORDER BY day_of_week, start_time, id
	`)
}

// CreateEntry persists a validated template entry and returns its id.
func (r *Repository) CreateEntry(ctx context.Context, e Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO schedule_entries (day_of_week, week_parity, start_time, end_time, subject, group_name, room, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, e.DayOfWeek, e.WeekParity, e.StartTime, e.EndTime, e.Subject, e.GroupName, e.Room, e.OwnerID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var e Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner, e *Entry) error {
	return s.Scan(&e.ID, &e.DayOfWeek, &e.WeekParity, &e.StartTime, &e.EndTime, &e.Subject, &e.GroupName, &e.Room, &e.OwnerID)
}
