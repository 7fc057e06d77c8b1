package extract

import (
	"fmt"
	"strings"
	"time"
)

const (
	slashDateLayout = "02/01/2006"
	dashDateLayout  = "02-01-2006"
	clockLayout     = "15:04"
	midnight        = "00:00"
)

// ParseDateTime parses a day-first date ("05/03/2024" or "05-03-2024") and an
// optional "HH:MM" clock in loc. An empty clock means midnight.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = midnight
	}

	layout := slashDateLayout
	if strings.Contains(date, "-") {
		layout = dashDateLayout
	}

	t, err := time.ParseInLocation(layout+" "+clockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q %q: %w", date, clock, err)
	}
	return t, nil
}
