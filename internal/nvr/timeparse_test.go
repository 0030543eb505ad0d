package nvr

import (
	"testing"
	"time"
)

func TestParseTimeFormats(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		endOfDay bool
		expected time.Time
	}{
		{"ISO date and time", "2024-12-28 14:30:15", false, time.Date(2024, 12, 28, 14, 30, 15, 0, time.Local)},
		{"ISO date and minutes", "2024-12-28 14:30", false, time.Date(2024, 12, 28, 14, 30, 0, 0, time.Local)},
		{"ISO date only", "2024-12-28", false, time.Date(2024, 12, 28, 0, 0, 0, 0, time.Local)},
		{"Locale date and time", "28.12.2024 14:30:15", false, time.Date(2024, 12, 28, 14, 30, 15, 0, time.Local)},
		{"Locale date and minutes", "28.12.2024 14:30", false, time.Date(2024, 12, 28, 14, 30, 0, 0, time.Local)},
		{"Locale date only", "28.12.2024", false, time.Date(2024, 12, 28, 0, 0, 0, 0, time.Local)},
		{"ISO date only end of day", "2024-12-28", true, time.Date(2024, 12, 28, 23, 59, 59, 0, time.Local)},
		{"Locale date only end of day", "28.12.2024", true, time.Date(2024, 12, 28, 23, 59, 59, 0, time.Local)},
		{"Explicit time keeps end of day off", "2024-12-28 10:00", true, time.Date(2024, 12, 28, 10, 0, 0, 0, time.Local)},
		{"Surrounding whitespace", "  2024-12-28 14:30  ", false, time.Date(2024, 12, 28, 14, 30, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.value, tt.endOfDay)
			if err != nil {
				t.Fatalf("ParseTime(%q) returned error: %v", tt.value, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseTimeEquivalentFormats(t *testing.T) {
	iso, err := ParseTime("2024-12-28", false)
	if err != nil {
		t.Fatalf("ParseTime ISO: %v", err)
	}
	locale, err := ParseTime("28.12.2024", false)
	if err != nil {
		t.Fatalf("ParseTime locale: %v", err)
	}
	if !iso.Equal(locale) {
		t.Errorf("equivalent dates parse differently: %v vs %v", iso, locale)
	}
}

func TestParseTimeInvalid(t *testing.T) {
	tests := []string{
		"",
		"not a date",
		"2024-13-01",
		"32.12.2024",
		"2024/12/28",
		"28-12-2024",
		"2024-12-28 25:00",
	}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			_, err := ParseTime(value, false)
			if err == nil {
				t.Fatalf("ParseTime(%q) succeeded, want error", value)
			}
			if KindOf(err) != KindValidation {
				t.Errorf("ParseTime(%q) error kind = %q, want %q", value, KindOf(err), KindValidation)
			}
		})
	}
}

func TestParseTimeRange(t *testing.T) {
	tr, err := ParseTimeRange("2024-12-28", "2024-12-28")
	if err != nil {
		t.Fatalf("ParseTimeRange: %v", err)
	}
	wantStart := time.Date(2024, 12, 28, 0, 0, 0, 0, time.Local)
	wantEnd := time.Date(2024, 12, 28, 23, 59, 59, 0, time.Local)
	if !tr.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", tr.Start, wantStart)
	}
	if !tr.End.Equal(wantEnd) {
		t.Errorf("End = %v, want %v", tr.End, wantEnd)
	}
}

func TestParseTimeRangeInverted(t *testing.T) {
	_, err := ParseTimeRange("2024-12-29", "2024-12-28")
	if err == nil {
		t.Fatal("inverted range accepted, want error")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindValidation)
	}
}
