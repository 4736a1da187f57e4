package engagement

import (
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for hosts without /usr/share/zoneinfo

	"github.com/blockrush/blockrush/internal/domain"
)

// ResolveLocation loads an IANA zone. Empty or unknown names resolve to UTC.
func ResolveLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsValidTimezone reports whether tz names a loadable IANA zone.
func IsValidTimezone(tz string) bool {
	tz = strings.TrimSpace(tz)
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// LocalDate returns the calendar day of instant in zone tz.
func LocalDate(instant time.Time, tz string) domain.Date {
	return domain.DateOf(instant.In(ResolveLocation(tz)))
}

// NextLocalMidnight returns, in UTC, the start of the local day after
// instant's local day.
func NextLocalMidnight(instant time.Time, tz string) time.Time {
	loc := ResolveLocation(tz)
	tomorrow := domain.DateOf(instant.In(loc)).AddDays(1)
	return tomorrow.Midnight(loc).UTC()
}
