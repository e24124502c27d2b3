package timeparsing

import (
	"testing"
	"time"
)

var base = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC) // a Monday

func TestParseDateISO(t *testing.T) {
	d, err := ParseDate("2026-09-15", base)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d == nil || d.String() != "2026-09-15" {
		t.Errorf("got %v", d)
	}
}

func TestParseDateEmpty(t *testing.T) {
	d, err := ParseDate("   ", base)
	if err != nil || d != nil {
		t.Errorf("blank input = %v, %v; want nil, nil", d, err)
	}
}

func TestParseDateNaturalLanguage(t *testing.T) {
	d, err := ParseDate("tomorrow", base)
	if err != nil {
		t.Fatalf("ParseDate(tomorrow): %v", err)
	}
	if d == nil || d.String() != "2026-09-01" {
		t.Errorf("tomorrow = %v, want 2026-09-01", d)
	}
}

func TestParseDateGarbage(t *testing.T) {
	if _, err := ParseDate("porcupine sandwich", base); err == nil {
		t.Error("garbage input accepted")
	}
}
