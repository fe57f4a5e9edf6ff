package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the canonical wire form of an occurrence date.
const DateFormat = "2006-01-02"

// Entry is one recurring rule of a weekly schedule template. Entries are
// created through the administrative surface and read-only afterwards.
type Entry struct {
	ID         int64   `json:"id"`
	DayOfWeek  int     `json:"day_of_week"` // ISO: Mon=1 .. Sun=7
	WeekParity int     `json:"week_parity"` // 0 or 1, weeks since semester start
	StartTime  string  `json:"start_time"`  // "15:04"
	EndTime    string  `json:"end_time"`
	Subject    string  `json:"subject"`
	GroupName  string  `json:"group_name"`
	Room       *string `json:"room,omitempty"`
	OwnerID    string  `json:"owner_id"`
}

// ErrInvalidEntry indicates a template entry violates its invariants.
var ErrInvalidEntry = errors.New("schedule: invalid template entry")

// Validate checks the invariants an entry must satisfy before persisting.
func (e Entry) Validate() error {
	if e.DayOfWeek < 1 || e.DayOfWeek > 7 {
		return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidEntry, e.DayOfWeek)
	}
	if e.WeekParity != 0 && e.WeekParity != 1 {
		return fmt.Errorf("%w: week_parity must be 0 or 1", ErrInvalidEntry)
	}
	start, err := time.Parse("15:04", e.StartTime)
	if err != nil {
		return fmt.Errorf("%w: start_time: %v", ErrInvalidEntry, err)
	}
	end, err := time.Parse("15:04", e.EndTime)
	if err != nil {
		return fmt.Errorf("%w: end_time: %v", ErrInvalidEntry, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start_time must precede end_time", ErrInvalidEntry)
	}
	if e.Subject == "" || e.GroupName == "" || e.OwnerID == "" {
		return fmt.Errorf("%w: subject, group_name and owner_id are required", ErrInvalidEntry)
	}
	return nil
}

// OccurrenceKey returns the canonical key for one dated instance of an entry.
// Verification compares these byte-for-byte, so the format must never drift.
func OccurrenceKey(entryID int64, date time.Time) string {
	return strconv.FormatInt(entryID, 10) + ":" + date.Format(DateFormat)
}

// ErrInvalidOccurrenceKey indicates a key that is not "{id}:{YYYY-MM-DD}".
var ErrInvalidOccurrenceKey = errors.New("schedule: invalid occurrence key")

// ParseOccurrenceKey splits a canonical occurrence key back into its parts.
func ParseOccurrenceKey(key string) (int64, time.Time, error) {
	idPart, datePart, ok := strings.Cut(key, ":")
	if !ok {
		return 0, time.Time{}, ErrInvalidOccurrenceKey
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, time.Time{}, ErrInvalidOccurrenceKey
	}
	date, err := time.Parse(DateFormat, datePart)
	if err != nil {
		return 0, time.Time{}, ErrInvalidOccurrenceKey
	}
	return id, date, nil
}

// Filter narrows occurrence resolution to one presenter or one group.
// The zero value matches everything.
type Filter struct {
	OwnerID   string
	GroupName string
}

func (f Filter) matches(e Entry) bool {
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if f.GroupName != "" && e.GroupName != f.GroupName {
		return false
	}
	return true
}

// Resolver maps calendar dates to the template entries active on them using
// the biweekly parity rule. The semester anchor is injected once; every call
// site sharing a Resolver shares the anchor.
type Resolver struct {
	anchor time.Time
}

// NewResolver constructs a resolver with the given semester start date.
// Only the calendar date of the anchor is significant.
func NewResolver(semesterStart time.Time) *Resolver {
	return &Resolver{anchor: midnightUTC(semesterStart)}
}

// Parity classifies a date by elapsed whole weeks since the semester anchor.
// The week containing the anchor has parity 0.
func (r *Resolver) Parity(date time.Time) int {
	days := int(midnightUTC(date).Sub(r.anchor).Hours() / 24)
	p := floorDiv(days, 7) % 2
	if p < 0 {
		p += 2
	}
	return p
}

// ISOWeekday returns the day of week with Monday=1 .. Sunday=7.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// OccurrencesOn returns the entries active on date, ordered by start time.
func (r *Resolver) OccurrencesOn(date time.Time, entries []Entry, filter Filter) []Entry {
	dow := ISOWeekday(date)
	parity := r.Parity(date)
	var out []Entry
	for _, e := range entries {
		if e.DayOfWeek != dow || e.WeekParity != parity {
			continue
		}
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveOn reports whether the entry has an occurrence on the given date.
func (r *Resolver) ActiveOn(e Entry, date time.Time) bool {
	return e.DayOfWeek == ISOWeekday(date) && e.WeekParity == r.Parity(date)
}

// ExpectedOccurrenceCount counts the dates in [start, end] on which the entry
// occurs. Matching dates repeat every 14 days once aligned on weekday and
// parity, which gives the closed form below.
func (r *Resolver) ExpectedOccurrenceCount(e Entry, start, end time.Time) int {
	start = midnightUTC(start)
	end = midnightUTC(end)
	if end.Before(start) {
		return 0
	}

	// Advance to the first date >= start with the entry's weekday.
	offset := (e.DayOfWeek - ISOWeekday(start) + 7) % 7
	first := start.AddDate(0, 0, offset)
	// Weekday matches alternate parity week over week.
	if r.Parity(first) != e.WeekParity {
		first = first.AddDate(0, 0, 7)
	}
	if first.After(end) {
		return 0
	}
	days := int(end.Sub(first).Hours() / 24)
	return days/14 + 1
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
