package nvr

import (
	"strings"
	"time"

	"nvrexport/internal/models"
)

// Accepted time literal layouts, ISO-like and locale forms.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
}

var dateOnlyLayouts = map[string]bool{
	"2006-01-02": true,
	"02.01.2006": true,
}

// ParseTime parses one of the six accepted time literals. A date without a
// time-of-day resolves to 00:00:00, or to 23:59:59 when endOfDay is set, so
// that "2024-12-28" covers the whole day as a range boundary.
func ParseTime(value string, endOfDay bool) (time.Time, error) {
	s := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		if endOfDay && dateOnlyLayouts[layout] {
			t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		}
		return t, nil
	}
	return time.Time{}, validationErrorf("parse time",
		"invalid time %q (expected YYYY-MM-DD[ HH:MM[:SS]] or DD.MM.YYYY[ HH:MM[:SS]])", value)
}

// ParseTimeRange parses start and end literals into a normalized range.
func ParseTimeRange(start, end string) (models.TimeRange, error) {
	s, err := ParseTime(start, false)
	if err != nil {
		return models.TimeRange{}, err
	}
	e, err := ParseTime(end, true)
	if err != nil {
		return models.TimeRange{}, err
	}
	tr := models.TimeRange{Start: s, End: e}
	if err := ValidateTimeRange(tr); err != nil {
		return models.TimeRange{}, err
	}
	return tr, nil
}

// ValidateTimeRange enforces start <= end.
func ValidateTimeRange(tr models.TimeRange) error {
	if tr.End.Before(tr.Start) {
		return validationErrorf("validate time range",
			"start %s is after end %s", tr.Start.Format(time.DateTime), tr.End.Format(time.DateTime))
	}
	return nil
}
