package features

import (
	"math"
	"time"
)

// TemporalBuilder derives calendar features from a timestamp alone. All fields
// are computed on the UTC wall clock; day_of_week counts from Monday = 0.
type TemporalBuilder struct {
	calendar *Calendar
}

// NewTemporalBuilder returns a builder using cal, or DefaultCalendar when nil.
func NewTemporalBuilder(cal *Calendar) *TemporalBuilder {
	if cal == nil {
		cal = DefaultCalendar()
	}
	return &TemporalBuilder{calendar: cal}
}

// Build returns the temporal feature map for t.
func (b *TemporalBuilder) Build(t time.Time) Map {
	t = t.UTC()
	hour := t.Hour()
	dow := weekday(t)
	month := int(t.Month())
	_, week := t.ISOWeek()

	m := Map{
		"hour":         float64(hour),
		"day_of_week":  float64(dow),
		"day_of_month": float64(t.Day()),
		"month":        float64(month),
		"week_of_year": float64(week),

		"is_weekend":   flag(dow >= 5),
		"is_morning":   flag(hour >= 6 && hour < 12),
		"is_afternoon": flag(hour >= 12 && hour < 18),
		"is_evening":   flag(hour >= 18 && hour < 22),
		"is_night":     flag(hour >= 22 || hour < 6),

		"is_peak_morning": flag(hour >= 6 && hour <= 9),
		"is_peak_evening": flag(hour >= 16 && hour <= 19),
		"is_friday":       flag(dow == 4),

		"is_holiday":             flag(b.calendar.IsHoliday(t)),
		"days_to_next_holiday":   float64(b.calendar.DaysToNext(t)),
		"days_from_last_holiday": float64(b.calendar.DaysFromLast(t)),
	}

	m["hour_sin"], m["hour_cos"] = cyclical(hour, 24)
	m["day_sin"], m["day_cos"] = cyclical(dow, 7)
	m["month_sin"], m["month_cos"] = cyclical(month, 12)
	return m
}

// weekday maps time.Weekday (Sunday = 0) to Monday = 0 ... Sunday = 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func cyclical(v, period int) (float64, float64) {
	angle := 2 * math.Pi * float64(v) / float64(period)
	return math.Sin(angle), math.Cos(angle)
}
