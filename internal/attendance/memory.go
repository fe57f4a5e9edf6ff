package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/schedule"
)

// MemoryLedger is a mutex-guarded in-memory Ledger for dev and tests. The
// lock is the serialization point standing in for the database constraint.
type MemoryLedger struct {
	mu      sync.Mutex
	byKey   map[string]Record
	ordered []string
	clock   func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byKey: make(map[string]Record), clock: time.Now}
}

// WithClock overrides the ledger's time source, for deterministic tests.
func (m *MemoryLedger) WithClock(clock func() time.Time) *MemoryLedger {
	m.clock = clock
	return m
}

func ledgerKey(attendeeID string, entryID int64, date time.Time) string {
	return attendeeID + "|" + schedule.OccurrenceKey(entryID, date)
}

// RecordIfAbsent inserts under the lock; the first writer wins.
func (m *MemoryLedger) RecordIfAbsent(_ context.Context, attendeeID string, entryID int64, date time.Time) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey(attendeeID, entryID, date)
	if _, ok := m.byKey[key]; ok {
		return Record{}, false, nil
	}
	rec := Record{
		ID:         uuid.NewString(),
		AttendeeID: attendeeID,
		EntryID:    entryID,
		Date:       date,
		RecordedAt: m.clock().UTC(),
	}
	m.byKey[key] = rec
	m.ordered = append(m.ordered, key)
	return rec, true, nil
}

// ListRecords returns records for one occurrence, newest first.
func (m *MemoryLedger) ListRecords(_ context.Context, entryID int64, date time.Time, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, key := range m.ordered {
		rec := m.byKey[key]
		if rec.EntryID != entryID {
			continue
		}
		if !date.IsZero() && !rec.Date.Equal(date) {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RecordedAt.After(res[j].RecordedAt) })
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// CountForAttendee counts redemptions of an entry by one attendee.
func (m *MemoryLedger) CountForAttendee(_ context.Context, attendeeID string, entryID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.byKey {
		if rec.AttendeeID == attendeeID && rec.EntryID == entryID {
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored records.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
