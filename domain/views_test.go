package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFlatDates_ExcludesItineraryAndSortsChronologically(t *testing.T) {
	req := require.New(t)

	// Given a mix of categories out of order
	dates := []DateEvent{
		{ID: "3", Title: "Museum", At: at("2025-06-03T10:00"), Category: CategoryItinerary},
		{ID: "2", Title: "Call", At: at("2025-06-02T20:00"), Category: CategoryCall},
		{ID: "1", Title: "Dinner", At: at("2025-06-01T19:00"), Category: CategoryMeetup},
	}

	// When
	flat := FlatDates(dates)

	// Then
	req.Len(flat, 2)
	req.Equal("1", flat[0].ID)
	req.Equal("2", flat[1].ID)
	for _, d := range flat {
		req.NotEqual(CategoryItinerary, d.Category)
	}
}

func TestItinerary_GroupsByDayAndKeepsOnlyItinerary(t *testing.T) {
	req := require.New(t)

	dates := []DateEvent{
		{ID: "b", Title: "Lunch", At: at("2025-06-02T12:30"), Category: CategoryItinerary},
		{ID: "a", Title: "Breakfast", At: at("2025-06-02T08:00"), Category: CategoryItinerary},
		{ID: "c", Title: "Flight", At: at("2025-06-03T06:15"), Category: CategoryItinerary},
		{ID: "x", Title: "Anniversary", At: at("2025-06-02T00:00"), Category: CategoryAnniversary},
	}

	days := Itinerary(dates, time.UTC)

	req.Len(days, 2)
	req.Equal("Monday, June 2nd", days[0].Label)
	req.Equal([]string{"a", "b"}, []string{days[0].Activities[0].ID, days[0].Activities[1].ID})
	req.Equal("Tuesday, June 3rd", days[1].Label)
	req.Len(days[1].Activities, 1)
	for _, day := range days {
		for _, activity := range day.Activities {
			req.True(activity.IsItinerary())
		}
	}
}

func TestOrdinal(t *testing.T) {
	req := require.New(t)
	cases := map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 22: "22nd", 31: "31st"}
	for n, want := range cases {
		req.Equal(want, Ordinal(n))
	}
}

func TestScheduleGrid_MissingCellsAreFree(t *testing.T) {
	req := require.New(t)

	cells := []ScheduleCell{
		{User: Bozy, Day: "Monday", Period: "3rd", Subject: "Math", Time: "10:00"},
		{User: Angy, Day: "Monday", Period: "1st", Subject: "Art"},
	}

	grid := ScheduleGrid(cells, Bozy)

	req.Len(grid, len(Weekdays))
	req.Equal("Monday", grid[0].Day)
	req.Len(grid[0].Periods, len(Periods))
	req.Equal(FreeSubject, grid[0].Periods[0].Subject)
	req.Equal("Math", grid[0].Periods[2].Subject)
	req.Equal("10:00", grid[0].Periods[2].Time)
}
