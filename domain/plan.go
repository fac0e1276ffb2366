package domain

import "time"

type PlanCategory string

const (
	PlanGeneral PlanCategory = "General"
	PlanArt     PlanCategory = "Art"
	PlanFood    PlanCategory = "Food"
	PlanNature  PlanCategory = "Nature"
	PlanWalk    PlanCategory = "Walk"
	PlanTravel  PlanCategory = "Travel"
)

// PlanItem is a shared to-do. Either participant may toggle or delete any item.
type PlanItem struct {
	ID        string
	Title     string
	Location  string
	Completed bool
	Category  PlanCategory
	CreatedBy Alias
	CreatedAt time.Time
}

type NewPlanItem struct {
	Title     string       `validate:"required,max=200"`
	Location  string       `validate:"max=200"`
	Category  PlanCategory `validate:"required,oneof=General Art Food Nature Walk Travel"`
	CreatedBy Alias        `validate:"omitempty,oneof=angy bozy"`
}

type PlanPatch struct {
	Title     *string
	Location  *string
	Completed *bool
	Category  *PlanCategory
}

func (p NewPlanItem) Row() Row {
	row := Row{
		"title":     p.Title,
		"location":  p.Location,
		"completed": false,
		"category":  string(p.Category),
	}
	if p.CreatedBy != "" {
		row["created_by"] = string(p.CreatedBy)
	}
	return row
}

func (p PlanPatch) Row() Row {
	row := Row{}
	if p.Title != nil {
		row["title"] = *p.Title
	}
	if p.Location != nil {
		row["location"] = *p.Location
	}
	if p.Completed != nil {
		row["completed"] = *p.Completed
	}
	if p.Category != nil {
		row["category"] = string(*p.Category)
	}
	return row
}

func PlanItemFromRow(row Row) PlanItem {
	// created_at is informational, a missing or malformed value keeps the zero instant
	createdAt, _ := row.Time("created_at")
	return PlanItem{
		ID:        row.String("id"),
		Title:     row.String("title"),
		Location:  row.String("location"),
		Completed: row.Bool("completed"),
		Category:  PlanCategory(row.String("category")),
		CreatedBy: Alias(row.String("created_by")),
		CreatedAt: createdAt,
	}
}
