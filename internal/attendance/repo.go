package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Record is one redemption, written exactly once per
// (attendee, template entry, date) and never mutated.
type Record struct {
	ID         string    `json:"id"`
	AttendeeID string    `json:"attendee_id"`
	EntryID    int64     `json:"entry_id"`
	Date       time.Time `json:"date"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger is the attendance store. RecordIfAbsent must be atomic with respect
// to the uniqueness invariant: of any number of concurrent calls with equal
// keys, exactly one reports recorded=true.
type Ledger interface {
	RecordIfAbsent(ctx context.Context, attendeeID string, entryID int64, date time.Time) (Record, bool, error)
	ListRecords(ctx context.Context, entryID int64, date time.Time, limit, offset int) ([]Record, error)
	CountForAttendee(ctx context.Context, attendeeID string, entryID int64) (int, error)
}

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordIfAbsent inserts a redemption row. Duplicates are detected solely by
// the unique constraint: the insert either lands or trips 23505, there is no
// read-then-write window.
func (r *Repository) RecordIfAbsent(ctx context.Context, attendeeID string, entryID int64, date time.Time) (Record, bool, error) {
	rec := Record{
		ID:         uuid.NewString(),
		AttendeeID: attendeeID,
		EntryID:    entryID,
		Date:       date,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, attendee_id, entry_id, occurrence_date)
		VALUES ($1,$2,$3,$4)
		RETURNING recorded_at
	`, rec.ID, rec.AttendeeID, rec.EntryID, rec.Date)
	if err := row.Scan(&rec.RecordedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, attendee_id, entry_id, occurrence_date, recorded_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.AttendeeID, &rec.EntryID, &rec.Date, &rec.RecordedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns the records for one occurrence, newest first. A zero
// date lists every occurrence of the entry.
func (r *Repository) ListRecords(ctx context.Context, entryID int64, date time.Time, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT id, attendee_id, entry_id, occurrence_date, recorded_at
		FROM attendance_records WHERE entry_id = $1`
	args := []any{entryID}
	if !date.IsZero() {
		query += ` AND occurrence_date = $2`
		args = append(args, date)
	}
	query += ` ORDER BY recorded_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AttendeeID, &rec.EntryID, &rec.Date, &rec.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CountForAttendee returns how many occurrences of an entry the attendee has
// redeemed, for attendance-rate statistics.
func (r *Repository) CountForAttendee(ctx context.Context, attendeeID string, entryID int64) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records
		WHERE attendee_id = $1 AND entry_id = $2
	`, attendeeID, entryID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
