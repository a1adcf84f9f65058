package features

import (
	"sort"
	"time"
)

// NoHolidayDays is reported for holiday distances when no holiday exists on that side.
const NoHolidayDays = 365

const day = 24 * time.Hour

// Calendar is an immutable, sorted set of holiday dates (UTC midnights).
type Calendar struct {
	days []time.Time
}

// NewCalendar builds a calendar from dates. Times are truncated to their UTC date
// and duplicates removed.
func NewCalendar(dates ...time.Time) *Calendar {
	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = utcDate(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return &Calendar{days: days}
}

// DefaultCalendar returns the built-in public holiday set.
func DefaultCalendar() *Calendar {
	return NewCalendar(
		time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),    // Eid al-Fitr
		time.Date(2025, time.June, 7, 0, 0, 0, 0, time.UTC),      // Eid al-Adha
		time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC), // Independence Day
		time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.May, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.November, 15, 0, 0, 0, 0, time.UTC),
	)
}

// Dates returns a copy of the holiday dates in ascending order.
func (c *Calendar) Dates() []time.Time {
	out := make([]time.Time, len(c.days))
	copy(out, c.days)
	return out
}

// Len returns the number of holidays.
func (c *Calendar) Len() int { return len(c.days) }

// IsHoliday reports whether t falls on a holiday's UTC date.
func (c *Calendar) IsHoliday(t time.Time) bool {
	d := utcDate(t)
	i := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(d) })
	return i < len(c.days) && c.days[i].Equal(d)
}

// DaysToNext returns whole days from t until the first holiday strictly after t.
func (c *Calendar) DaysToNext(t time.Time) int {
	i := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(t) })
	if i == len(c.days) {
		return NoHolidayDays
	}
	return int(c.days[i].Sub(t) / day)
}

// DaysFromLast returns whole days since the last holiday strictly before t.
func (c *Calendar) DaysFromLast(t time.Time) int {
	i := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(t) })
	if i == 0 {
		return NoHolidayDays
	}
	return int(t.Sub(c.days[i-1]) / day)
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
