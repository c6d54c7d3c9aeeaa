package schedule

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestContinuousAddsWallClockMinutes(t *testing.T) {
	start := mustDate(t, "2026-03-06 18:00") // Friday
	got := Continuous{}.AddWorkMinutes(start, 90)
	if want := mustDate(t, "2026-03-06 19:30"); !got.Equal(want) {
		t.Fatalf("expected %s got %s", want, got)
	}
	if got := (Continuous{}).AddWorkMinutes(start, 0); !got.Equal(start) {
		t.Fatalf("zero minutes must be identity, got %s", got)
	}
}

func TestOfficeHoursWithinDay(t *testing.T) {
	cal := DefaultOfficeHours(time.UTC)
	got := cal.AddWorkMinutes(mustDate(t, "2026-03-04 10:00"), 60)
	if want := mustDate(t, "2026-03-04 11:00"); !got.Equal(want) {
		t.Fatalf("expected %s got %s", want, got)
	}
}

func TestOfficeHoursSpillsIntoNextWeekday(t *testing.T) {
	cal := DefaultOfficeHours(time.UTC)
	// Friday 18:00 + 120 min: 60 min on Friday, 60 min from Monday 09:30.
	got := cal.AddWorkMinutes(mustDate(t, "2026-03-06 18:00"), 120)
	if want := mustDate(t, "2026-03-09 10:30"); !got.Equal(want) {
		t.Fatalf("expected %s got %s", want, got)
	}
}

func TestOfficeHoursStartOutsideHours(t *testing.T) {
	cal := DefaultOfficeHours(time.UTC)
	cases := []struct {
		start, want string
	}{
		{"2026-03-04 07:00", "2026-03-04 09:40"}, // before opening
		{"2026-03-04 20:00", "2026-03-05 09:40"}, // after closing
		{"2026-03-07 12:00", "2026-03-09 09:40"}, // Saturday
	}
	for _, c := range cases {
		got := cal.AddWorkMinutes(mustDate(t, c.start), 10)
		if want := mustDate(t, c.want); !got.Equal(want) {
			t.Fatalf("start %s: expected %s got %s", c.start, want, got)
		}
	}
}

func TestOfficeHoursZeroIsIdentity(t *testing.T) {
	cal := DefaultOfficeHours(time.UTC)
	start := mustDate(t, "2026-03-07 23:15")
	if got := cal.AddWorkMinutes(start, 0); !got.Equal(start) {
		t.Fatalf("expected identity, got %s", got)
	}
}

func TestAddWorkMinutesIsAdditive(t *testing.T) {
	cals := map[string]Calendar{
		"continuous": Continuous{},
		"office":     DefaultOfficeHours(time.UTC),
	}
	starts := []string{"2026-03-04 09:30", "2026-03-04 18:59", "2026-03-06 17:00", "2026-03-08 03:00"}
	splits := [][2]int{{30, 30}, {570, 1}, {1, 570}, {600, 900}, {0, 45}}
	for name, cal := range cals {
		for _, s := range starts {
			start := mustDate(t, s)
			for _, sp := range splits {
				whole := cal.AddWorkMinutes(start, sp[0]+sp[1])
				parts := cal.AddWorkMinutes(cal.AddWorkMinutes(start, sp[0]), sp[1])
				if !whole.Equal(parts) {
					t.Fatalf("%s from %s split %v: %s != %s", name, s, sp, whole, parts)
				}
			}
		}
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c != 570 || c.String() != "09:30" {
		t.Fatalf("unexpected clock %d %s", c, c)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected out of range error")
	}
	for _, in := range []string{"noon", "09:30xyz", "09:30 ", "9:3", "09:60", ""} {
		if _, err := ParseClock(in); err == nil {
			t.Fatalf("expected parse error for %q", in)
		}
	}
}

func TestOfficeHoursDayMinutes(t *testing.T) {
	if got := DefaultOfficeHours(time.UTC).DayMinutes(); got != 570 {
		t.Fatalf("expected 570 office minutes, got %d", got)
	}
	start := mustDate(t, "2026-03-04 10:00")
	inverted := OfficeHours{Start: 19 * 60, End: 9 * 60, Location: time.UTC}
	if got := inverted.AddWorkMinutes(start, 60); !got.Equal(start) {
		t.Fatalf("empty office day must not advance, got %s", got)
	}
}
