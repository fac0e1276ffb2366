package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
)

// FlatDates lists every non-itinerary date in chronological order.
func FlatDates(dates []DateEvent) []DateEvent {
	flat := lo.Reject(dates, func(d DateEvent, _ int) bool { return d.IsItinerary() })
	slices.SortStableFunc(flat, func(a, b DateEvent) int { return a.At.Compare(b.At) })
	return flat
}

// ItineraryDay gathers the itinerary activities of one calendar day.
type ItineraryDay struct {
	Label      string // e.g. "Monday, January 2nd"
	Day        time.Time
	Activities []DateEvent
}

// Itinerary groups itinerary dates by calendar day in loc, days and activities in chronological order.
func Itinerary(dates []DateEvent, loc *time.Location) []ItineraryDay {
	items := lo.Filter(dates, func(d DateEvent, _ int) bool { return d.IsItinerary() })
	slices.SortStableFunc(items, func(a, b DateEvent) int { return a.At.Compare(b.At) })

	var days []ItineraryDay
	for _, item := range items {
		local := item.At.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if n := len(days); n > 0 && days[n-1].Day.Equal(day) {
			days[n-1].Activities = append(days[n-1].Activities, item)
			continue
		}
		days = append(days, ItineraryDay{
			Label:      DayLabel(day),
			Day:        day,
			Activities: []DateEvent{item},
		})
	}
	return days
}

func DayLabel(t time.Time) string {
	return fmt.Sprintf("%s, %s %s", t.Weekday(), t.Month(), Ordinal(t.Day()))
}

// Ordinal renders 1 as "1st", 12 as "12th", 22 as "22nd".
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
