package domain

import (
	"fmt"
	"time"
)

type DateCategory string

const (
	CategoryMeetup      DateCategory = "meetup"
	CategoryCall        DateCategory = "call"
	CategoryTrip        DateCategory = "trip"
	CategoryAnniversary DateCategory = "anniversary"
	// CategoryItinerary routes an event to the day-grouped itinerary instead of the flat list.
	CategoryItinerary DateCategory = "itinerary"
)

// DateEvent is a dated entry shared by both participants.
type DateEvent struct {
	ID        string
	Title     string
	At        time.Time
	Location  string
	Category  DateCategory
	CreatedBy Alias
}

// NewDateEvent carries the fields of a date before the store assigns its identifier.
type NewDateEvent struct {
	Title     string       `validate:"required,max=200"`
	At        time.Time    `validate:"required"`
	Location  string       `validate:"max=200"`
	Category  DateCategory `validate:"required,oneof=meetup call trip anniversary itinerary"`
	CreatedBy Alias        `validate:"omitempty,oneof=angy bozy"`
}

// DatePatch lists the columns to change, nil fields are left untouched.
type DatePatch struct {
	Title    *string
	At       *time.Time
	Location *string
	Category *DateCategory
}

func (d NewDateEvent) Row() Row {
	row := Row{
		"title":    d.Title,
		"date":     FormatTime(d.At),
		"location": d.Location,
		"type":     string(d.Category),
	}
	if d.CreatedBy != "" {
		row["created_by"] = string(d.CreatedBy)
	}
	return row
}

func (p DatePatch) Row() Row {
	row := Row{}
	if p.Title != nil {
		row["title"] = *p.Title
	}
	if p.At != nil {
		row["date"] = FormatTime(*p.At)
	}
	if p.Location != nil {
		row["location"] = *p.Location
	}
	if p.Category != nil {
		row["type"] = string(*p.Category)
	}
	return row
}

func DateEventFromRow(row Row) (DateEvent, error) {
	at, err := row.Time("date")
	if err != nil {
		return DateEvent{}, fmt.Errorf("date %s: %w", row.String("id"), err)
	}
	return DateEvent{
		ID:        row.String("id"),
		Title:     row.String("title"),
		At:        at,
		Location:  row.String("location"),
		Category:  DateCategory(row.String("type")),
		CreatedBy: Alias(row.String("created_by")),
	}, nil
}

func (d DateEvent) IsItinerary() bool {
	return d.Category == CategoryItinerary
}
