package timeutil

import (
	"testing"
	"time"
)

func TestFromAppleNanosZero(t *testing.T) {
	if _, ok := FromAppleNanos(0); ok {
		t.Fatalf("expected zero timestamp to be absent")
	}
}

func TestFromAppleNanosEpoch(t *testing.T) {
	got, ok := FromAppleNanos(1)
	if !ok {
		t.Fatalf("expected timestamp to be present")
	}
	want := time.Date(2001, 1, 1, 0, 0, 0, 1, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestFromAppleNanosRoundTrip(t *testing.T) {
	// noon local avoids day boundaries shifting under any test timezone
	ref := time.Date(2019, 8, 21, 12, 0, 0, 0, time.Local)
	nanos := (ref.Unix() - appleEpochOffset) * 1e9
	got, ok := FromAppleNanos(nanos)
	if !ok {
		t.Fatalf("expected timestamp to be present")
	}
	if !got.Equal(ref) {
		t.Fatalf("got %v want %v", got, ref)
	}
	if got.Local().Year() != 2019 || got.Local().Month() != time.August || got.Local().Day() != 21 {
		t.Fatalf("local calendar day mismatch: %v", got.Local())
	}
}

func TestAppleNanosToISO(t *testing.T) {
	ref := time.Date(2022, 3, 5, 12, 30, 45, 0, time.Local)
	nanos := (ref.Unix() - appleEpochOffset) * 1e9
	iso, ok := AppleNanosToISO(nanos)
	if !ok {
		t.Fatalf("expected timestamp to be present")
	}
	parsed, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		t.Fatalf("parse %q: %v", iso, err)
	}
	if !parsed.Equal(ref) {
		t.Fatalf("round trip mismatch: got %v want %v", parsed, ref)
	}
	if _, ok := AppleNanosToISO(0); ok {
		t.Fatalf("expected absent timestamp to stay absent")
	}
}

func TestMonthDayKey(t *testing.T) {
	cases := []struct {
		month, day int
		want       string
	}{
		{1, 2, "01-02"},
		{12, 31, "12-31"},
		{8, 21, "08-21"},
	}
	for _, c := range cases {
		if got := MonthDayKey(c.month, c.day); got != c.want {
			t.Fatalf("MonthDayKey(%d, %d) = %q want %q", c.month, c.day, got, c.want)
		}
	}
}
