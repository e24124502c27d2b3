package types

import (
	"testing"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-15")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got := d.String(); got != "2026-03-15" {
		t.Errorf("String() = %q, want 2026-03-15", got)
	}

	for _, bad := range []string{"", "2026-3-5x", "15/03/2026", "not a date"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) succeeded, want error", bad)
		}
	}
}

func TestDateAddDays(t *testing.T) {
	d, _ := ParseDate("2026-02-27")
	if got := d.AddDays(2).String(); got != "2026-03-01" {
		t.Errorf("AddDays(2) = %q, want 2026-03-01", got)
	}
	if got := d.AddDays(-27).String(); got != "2026-01-31" {
		t.Errorf("AddDays(-27) = %q, want 2026-01-31", got)
	}
}

func TestDateDaysUntil(t *testing.T) {
	a, _ := ParseDate("2026-03-01")
	b, _ := ParseDate("2026-03-11")
	if got := a.DaysUntil(b); got != 10 {
		t.Errorf("DaysUntil = %d, want 10", got)
	}
	if got := b.DaysUntil(a); got != -10 {
		t.Errorf("reverse DaysUntil = %d, want -10", got)
	}
}

func TestDateOrdering(t *testing.T) {
	a, _ := ParseDate("2026-01-01")
	b, _ := ParseDate("2026-06-01")
	if !a.Before(b) || b.Before(a) {
		t.Errorf("Before ordering wrong for %s / %s", a, b)
	}
	if !b.After(a) {
		t.Errorf("After ordering wrong for %s / %s", a, b)
	}
	if got := MaxDate(a, b); got.String() != b.String() {
		t.Errorf("MaxDate = %s, want %s", got, b)
	}
	if got := MinDate(a, b); got.String() != a.String() {
		t.Errorf("MinDate = %s, want %s", got, a)
	}
}
