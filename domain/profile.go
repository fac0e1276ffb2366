package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// UserProfile is owned by its alias: only that user updates it, both read it.
// ThemeColors never leaves the device.
type UserProfile struct {
	ID              Alias
	Name            string
	Bio             string
	Avatar          string
	BackgroundImage string
	ThemeColors     *ThemeValues
	Status          Status
	UpdatedAt       time.Time
}

func DefaultProfiles() map[Alias]UserProfile {
	return map[Alias]UserProfile{
		Angy: {
			ID:     Angy,
			Name:   "Angy",
			Bio:    "Distance means so little when someone means so much.",
			Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Angy&backgroundColor=ffdfbf",
			Status: StatusOffline,
		},
		Bozy: {
			ID:     Bozy,
			Name:   "Bozy",
			Bio:    "Counting down the days...",
			Avatar: "https://api.dicebear.com/7.x/avataaars/svg?seed=Bozy&backgroundColor=b6e3f4",
			Status: StatusOffline,
		},
	}
}

// ProfileFromRow hydrates the persisted columns, leaving ThemeColors to the caller.
func ProfileFromRow(row Row) (UserProfile, error) {
	alias, err := ParseAlias(row.String("id"))
	if err != nil {
		return UserProfile{}, err
	}
	status := Status(row.String("status"))
	if status == "" {
		status = StatusOffline
	}
	updatedAt, _ := row.Time("updated_at")
	return UserProfile{
		ID:              alias,
		Name:            row.String("name"),
		Bio:             row.String("bio"),
		Avatar:          row.String("avatar_url"),
		BackgroundImage: row.String("background_url"),
		Status:          status,
		UpdatedAt:       updatedAt,
	}, nil
}

// ProfilePatch lists the fields to change, nil fields are left untouched.
type ProfilePatch struct {
	Name            *string       `validate:"omitempty,max=80"`
	Bio             *string       `validate:"omitempty,max=500"`
	Avatar          *string       `validate:"omitempty,max=2048"`
	BackgroundImage *string       `validate:"omitempty,max=2048"`
	Status          *Status       `validate:"omitempty,oneof=online idle dnd offline"`
	ThemeColors     *ThemeValues
}

// Apply returns the profile with the patch applied.
func (p ProfilePatch) Apply(profile UserProfile) UserProfile {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.Avatar != nil {
		profile.Avatar = *p.Avatar
	}
	if p.BackgroundImage != nil {
		profile.BackgroundImage = *p.BackgroundImage
	}
	if p.Status != nil {
		profile.Status = *p.Status
	}
	if p.ThemeColors != nil {
		colors := *p.ThemeColors
		profile.ThemeColors = &colors
	}
	return profile
}

// Row keeps only the persisted columns, theme colors stay local.
func (p ProfilePatch) Row(id Alias, now time.Time) Row {
	row := Row{
		"id":         string(id),
		"updated_at": FormatTime(now),
	}
	if p.Name != nil {
		row["name"] = *p.Name
	}
	if p.Bio != nil {
		row["bio"] = *p.Bio
	}
	if p.Avatar != nil {
		row["avatar_url"] = *p.Avatar
	}
	if p.BackgroundImage != nil {
		row["background_url"] = *p.BackgroundImage
	}
	if p.Status != nil {
		row["status"] = string(*p.Status)
	}
	return row
}

// ImageKind tells which profile picture an upload replaces.
type ImageKind string

const (
	ImageAvatar     ImageKind = "avatar"
	ImageBackground ImageKind = "background"
)

// ImagePath is the object path of a profile image, one per alias and kind.
func ImagePath(user Alias, kind ImageKind, ext string) string {
	if ext == "jpeg" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s-%s.%s", user, kind, ext)
}
