package services

import (
	"duo-lab/contract"
	"duo-lab/domain"
	"log/slog"
	"sync"
)

// ProfileLookup gives access to the profiles held by the session.
type ProfileLookup interface {
	Profile(user domain.Alias) (domain.UserProfile, bool)
}

// ThemeService resolves the theme of the current user and persists the dark mode choice.
type ThemeService struct {
	log      *slog.Logger
	prefs    contract.Preferences
	profiles ProfileLookup

	mu   sync.RWMutex
	dark bool
}

func NewThemeService(log *slog.Logger, prefs contract.Preferences, profiles ProfileLookup) *ThemeService {
	dark, err := prefs.DarkMode()
	if err != nil {
		log.Warn("Cannot read dark mode preference", "error", err)
	}
	return &ThemeService{log: log, prefs: prefs, profiles: profiles, dark: dark}
}

func (s *ThemeService) DarkMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dark
}

// ToggleDarkMode flips and persists the preference, returning the new value.
func (s *ThemeService) ToggleDarkMode() bool {
	s.mu.Lock()
	s.dark = !s.dark
	dark := s.dark
	s.mu.Unlock()

	if err := s.prefs.SetDarkMode(dark); err != nil {
		s.log.Error("Error saving dark mode", "error", err)
	}
	return dark
}

// Theme is the base theme of user, overridden by their custom colors.
// An empty user gets Angy's theme.
func (s *ThemeService) Theme(user domain.Alias) domain.Theme {
	var custom *domain.ThemeValues
	if s.profiles != nil {
		if p, ok := s.profiles.Profile(user); ok {
			custom = p.ThemeColors
		}
	}
	return domain.ResolveTheme(user, s.DarkMode(), custom)
}
