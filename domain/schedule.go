package domain

import "github.com/samber/lo"

var (
	Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	Periods  = []string{"1st", "2nd", "3rd", "4th", "5th", "6th", "7th", "8th"}
)

// FreeSubject is shown for a period nobody filled in.
const FreeSubject = "Free"

// ScheduleConflictKey is the unique constraint cells are upserted on.
var ScheduleConflictKey = []string{"user_profile", "day", "period"}

// ScheduleKey identifies at most one cell.
type ScheduleKey struct {
	User   Alias
	Day    string
	Period string
}

type ScheduleCell struct {
	User    Alias  `validate:"required,oneof=angy bozy"`
	Day     string `validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday"`
	Period  string `validate:"required,oneof=1st 2nd 3rd 4th 5th 6th 7th 8th"`
	Subject string `validate:"required,max=100"`
	Time    string `validate:"max=50"`
}

func (c ScheduleCell) Key() ScheduleKey {
	return ScheduleKey{User: c.User, Day: c.Day, Period: c.Period}
}

func (c ScheduleCell) Row() Row {
	row := Row{
		"user_profile": string(c.User),
		"day":          c.Day,
		"period":       c.Period,
		"subject":      c.Subject,
	}
	if c.Time != "" {
		row["time"] = c.Time
	}
	return row
}

func ScheduleCellFromRow(row Row) ScheduleCell {
	return ScheduleCell{
		User:    Alias(row.String("user_profile")),
		Day:     row.String("day"),
		Period:  row.String("period"),
		Subject: row.String("subject"),
		Time:    row.String("time"),
	}
}

type SchedulePeriod struct {
	Period  string
	Subject string
	Time    string
}

type ScheduleDay struct {
	Day     string
	Periods []SchedulePeriod
}

// ScheduleGrid lays out the week of one participant, missing cells are Free.
func ScheduleGrid(cells []ScheduleCell, user Alias) []ScheduleDay {
	byKey := lo.KeyBy(
		lo.Filter(cells, func(c ScheduleCell, _ int) bool { return c.User == user }),
		func(c ScheduleCell) ScheduleKey { return c.Key() },
	)
	return lo.Map(Weekdays, func(day string, _ int) ScheduleDay {
		return ScheduleDay{
			Day: day,
			Periods: lo.Map(Periods, func(period string, _ int) SchedulePeriod {
				cell, ok := byKey[ScheduleKey{User: user, Day: day, Period: period}]
				if !ok {
					return SchedulePeriod{Period: period, Subject: FreeSubject}
				}
				return SchedulePeriod{Period: period, Subject: cell.Subject, Time: cell.Time}
			}),
		}
	})
}
