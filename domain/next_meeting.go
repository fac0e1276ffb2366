package domain

import (
	"fmt"
	"time"
)

// NextMeetingKey is the config key of the singleton next-meeting record.
const NextMeetingKey = "next_meeting"

// DefaultNextMeeting is the countdown target until someone sets one.
var DefaultNextMeeting = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func NextMeetingRow(at time.Time) Row {
	return Row{
		"key":   NextMeetingKey,
		"value": map[string]any{"date": FormatTime(at)},
	}
}

func NextMeetingFromRow(row Row) (time.Time, error) {
	value := row.Map("value")
	if value == nil {
		return time.Time{}, fmt.Errorf("config %s has no value", row.String("key"))
	}
	date, _ := value["date"].(string)
	return ParseTime(date)
}

// Countdown is the remaining time split the way the home view shows it.
type Countdown struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// TimeUntil is zero once the target is reached.
func TimeUntil(target, now time.Time) Countdown {
	d := target.Sub(now)
	if d <= 0 {
		return Countdown{}
	}
	total := int(d / time.Second)
	return Countdown{
		Days:    total / 86400,
		Hours:   total / 3600 % 24,
		Minutes: total / 60 % 60,
		Seconds: total % 60,
	}
}

type Anniversary struct {
	Title string
	Date  time.Time
}

var Anniversaries = []Anniversary{
	{Title: "First Time Meeting", Date: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
	{Title: "First Date", Date: time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC)},
	{Title: "First Kiss", Date: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)},
}

// DaysTogether counts whole days elapsed since the anniversary.
func (a Anniversary) DaysTogether(now time.Time) int {
	return int(now.Sub(a.Date) / (24 * time.Hour))
}
