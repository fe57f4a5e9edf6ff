package schedule

import (
	"testing"
	"time"
)

var anchor = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func entry(id int64, dow, parity int, start, group string) Entry {
	return Entry{
		ID:         id,
		DayOfWeek:  dow,
		WeekParity: parity,
		StartTime:  start,
		EndTime:    "23:59",
		Subject:    "subject",
		GroupName:  group,
		OwnerID:    "t1",
	}
}

func TestParity(t *testing.T) {
	r := NewResolver(anchor)
	tests := []struct {
		date time.Time
		want int
	}{
		{date(2025, time.September, 1), 0},  // anchor Monday, week 0
		{date(2025, time.September, 7), 0},  // Sunday of week 0
		{date(2025, time.September, 8), 1},  // Monday of week 1
		{date(2025, time.September, 14), 1}, // Sunday of week 1
		{date(2025, time.September, 15), 0}, // week 2
		{date(2025, time.November, 3), 1},   // 63 days = week 9
		{date(2025, time.August, 31), 1},    // day before the anchor
		{date(2025, time.August, 25), 1},    // a full week before
	}
	for _, tc := range tests {
		if got := r.Parity(tc.date); got != tc.want {
			t.Errorf("Parity(%s) = %d, want %d", tc.date.Format(DateFormat), got, tc.want)
		}
	}
}

func TestParityIndependentOfAnchorWeekday(t *testing.T) {
	// Anchor on a Wednesday: parity is still purely elapsed whole weeks.
	r := NewResolver(date(2025, time.September, 3))
	if got := r.Parity(date(2025, time.September, 9)); got != 0 {
		t.Fatalf("six days after anchor: parity = %d, want 0", got)
	}
	if got := r.Parity(date(2025, time.September, 10)); got != 1 {
		t.Fatalf("seven days after anchor: parity = %d, want 1", got)
	}
}

func TestISOWeekday(t *testing.T) {
	if got := ISOWeekday(date(2025, time.September, 1)); got != 1 {
		t.Errorf("Monday = %d, want 1", got)
	}
	if got := ISOWeekday(date(2025, time.September, 7)); got != 7 {
		t.Errorf("Sunday = %d, want 7", got)
	}
}

func TestOccurrencesOn(t *testing.T) {
	r := NewResolver(anchor)
	entries := []Entry{
		entry(1, 1, 0, "10:00", "G1"),
		entry(2, 1, 0, "08:00", "G2"),
		entry(3, 1, 1, "09:00", "G1"), // wrong parity for week 0
		entry(4, 2, 0, "09:00", "G1"), // Tuesday
	}

	live := r.OccurrencesOn(date(2025, time.September, 1), entries, Filter{})
	if len(live) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(live))
	}
	if live[0].ID != 2 || live[1].ID != 1 {
		t.Errorf("order by start time: got %d, %d", live[0].ID, live[1].ID)
	}

	// Week 1: only the parity-1 Monday entry.
	live = r.OccurrencesOn(date(2025, time.September, 8), entries, Filter{})
	if len(live) != 1 || live[0].ID != 3 {
		t.Fatalf("week 1: got %+v, want entry 3", live)
	}

	live = r.OccurrencesOn(date(2025, time.September, 1), entries, Filter{GroupName: "G2"})
	if len(live) != 1 || live[0].ID != 2 {
		t.Fatalf("group filter: got %+v, want entry 2", live)
	}

	live = r.OccurrencesOn(date(2025, time.September, 1), entries, Filter{OwnerID: "nobody"})
	if len(live) != 0 {
		t.Fatalf("owner filter: got %+v, want none", live)
	}
}

// bruteForceCount is the reference enumeration the closed form must agree with.
func bruteForceCount(r *Resolver, e Entry, start, end time.Time) int {
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if ISOWeekday(d) == e.DayOfWeek && r.Parity(d) == e.WeekParity {
			n++
		}
	}
	return n
}

func TestExpectedOccurrenceCount(t *testing.T) {
	r := NewResolver(anchor)
	e := entry(1, 2, 0, "09:00", "G1")
	got := r.ExpectedOccurrenceCount(e, date(2025, time.September, 1), date(2025, time.September, 30))
	want := bruteForceCount(r, e, date(2025, time.September, 1), date(2025, time.September, 30))
	if got != want {
		t.Fatalf("dow=2 parity=0 over September: closed form %d, scan %d", got, want)
	}
}

func TestExpectedOccurrenceCountAgreesWithScan(t *testing.T) {
	r := NewResolver(anchor)
	ranges := [][2]time.Time{
		{date(2025, time.September, 1), date(2025, time.December, 31)},
		{date(2025, time.September, 3), date(2025, time.September, 3)},
		{date(2025, time.September, 2), date(2025, time.October, 17)},
		{date(2025, time.October, 1), date(2025, time.September, 1)}, // inverted
		{date(2025, time.August, 1), date(2025, time.September, 15)}, // straddles anchor
	}
	for dow := 1; dow <= 7; dow++ {
		for parity := 0; parity <= 1; parity++ {
			e := entry(1, dow, parity, "09:00", "G1")
			for _, rg := range ranges {
				got := r.ExpectedOccurrenceCount(e, rg[0], rg[1])
				want := bruteForceCount(r, e, rg[0], rg[1])
				if got != want {
					t.Errorf("dow=%d parity=%d range %s..%s: closed form %d, scan %d",
						dow, parity, rg[0].Format(DateFormat), rg[1].Format(DateFormat), got, want)
				}
			}
		}
	}
}

func TestOccurrenceKeyRoundTrip(t *testing.T) {
	key := OccurrenceKey(12, date(2025, time.November, 3))
	if key != "12:2025-11-03" {
		t.Fatalf("key = %q", key)
	}
	id, d, err := ParseOccurrenceKey(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != 12 || !d.Equal(date(2025, time.November, 3)) {
		t.Fatalf("parsed id=%d date=%s", id, d.Format(DateFormat))
	}
}

func TestParseOccurrenceKeyRejects(t *testing.T) {
	for _, key := range []string{"", "12", "12:", ":2025-11-03", "abc:2025-11-03", "12:03-11-2025", "0:2025-11-03", "-4:2025-11-03"} {
		if _, _, err := ParseOccurrenceKey(key); err == nil {
			t.Errorf("ParseOccurrenceKey(%q) accepted", key)
		}
	}
}

func TestEntryValidate(t *testing.T) {
	good := entry(1, 1, 0, "09:00", "G1")
	if err := good.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"day out of range", func(e *Entry) { e.DayOfWeek = 8 }},
		{"bad parity", func(e *Entry) { e.WeekParity = 2 }},
		{"start after end", func(e *Entry) { e.StartTime = "23:59"; e.EndTime = "09:00" }},
		{"start equals end", func(e *Entry) { e.EndTime = e.StartTime }},
		{"unparseable time", func(e *Entry) { e.StartTime = "9am" }},
		{"missing subject", func(e *Entry) { e.Subject = "" }},
		{"missing group", func(e *Entry) { e.GroupName = "" }},
	}
	for _, tc := range tests {
		e := good
		tc.mutate(&e)
		if err := e.Validate(); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}
