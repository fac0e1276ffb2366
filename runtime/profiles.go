package runtime

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const (
	ImageBucket = "images"
	// ImageURLTTL keeps profile image links valid for ten years.
	ImageURLTTL = 10 * 365 * 24 * time.Hour
)

// ProfileStore holds both user profiles.
// Each user only changes their own profile. Theme colors are device local:
// they survive every reload from the store and are persisted through Preferences.
type ProfileStore struct {
	log      *slog.Logger
	self     domain.Alias
	remote   contract.RemoteStore
	blobs    contract.BlobStore
	prefs    contract.Preferences
	validate *validator.Validate
	now      func() time.Time

	mu       sync.RWMutex
	profiles map[domain.Alias]domain.UserProfile
}

func NewProfileStore(
	log *slog.Logger,
	self domain.Alias,
	remote contract.RemoteStore,
	blobs contract.BlobStore,
	prefs contract.Preferences,
) *ProfileStore {
	profiles := domain.DefaultProfiles()
	for _, alias := range domain.Aliases {
		colors, err := prefs.ThemeColors(alias)
		if err != nil {
			log.Warn("Cannot read local theme colors", "user", alias, "error", err)
			continue
		}
		p := profiles[alias]
		p.ThemeColors = colors
		profiles[alias] = p
	}
	return &ProfileStore{
		log:      log,
		self:     self,
		remote:   remote,
		blobs:    blobs,
		prefs:    prefs,
		validate: validator.New(),
		now:      time.Now,
		profiles: profiles,
	}
}

func (s *ProfileStore) Profile(user domain.Alias) (domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[user]
	return p, ok
}

func (s *ProfileStore) Self() domain.UserProfile {
	p, _ := s.Profile(s.self)
	return p
}

// Name is the display name of a participant, "Partner" when unknown.
func (s *ProfileStore) Name(user domain.Alias) string {
	if p, ok := s.Profile(user); ok && p.Name != "" {
		return p.Name
	}
	return "Partner"
}

// Refresh loads both profiles from the store.
func (s *ProfileStore) Refresh(ctx context.Context) {
	rows, err := s.remote.Select(ctx, domain.TableProfiles, domain.Query{
		Filters: []domain.Filter{domain.In("id", string(domain.Angy), string(domain.Bozy))},
	})
	if err != nil {
		s.log.Error("Error fetching profiles", "error", err)
		return
	}
	for _, row := range rows {
		s.apply(row)
	}
}

// HandleChange applies a realtime event of the profiles table.
func (s *ProfileStore) HandleChange(evt domain.ChangeEvent) {
	if len(evt.Record) == 0 {
		return
	}
	s.apply(evt.Record)
}

func (s *ProfileStore) apply(row domain.Row) {
	profile, err := domain.ProfileFromRow(row)
	if err != nil {
		s.log.Warn("Ignoring profile row", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profile.ThemeColors = s.profiles[profile.ID].ThemeColors
	s.profiles[profile.ID] = profile
}

// Update applies the patch locally first, then upserts the persisted columns.
// A remote failure is logged, the local change is kept until the next reload.
func (s *ProfileStore) Update(ctx context.Context, patch domain.ProfilePatch) {
	if err := s.validate.Struct(patch); err != nil {
		s.log.Error("Invalid profile update", "error", err)
		return
	}
	s.mu.Lock()
	s.profiles[s.self] = patch.Apply(s.profiles[s.self])
	s.mu.Unlock()

	if patch.ThemeColors != nil {
		if err := s.prefs.SetThemeColors(s.self, patch.ThemeColors); err != nil {
			s.log.Error("Error saving theme colors", "error", err)
		}
	}
	if err := s.remote.Upsert(ctx, domain.TableProfiles, patch.Row(s.self, s.now())); err != nil {
		s.log.Error("Error updating profile", "error", err)
	}
}

// UpdateOf refuses to touch another user's profile.
func (s *ProfileStore) UpdateOf(ctx context.Context, owner domain.Alias, patch domain.ProfilePatch) error {
	if owner != s.self {
		return fmt.Errorf("%w: %s", errors.ErrNotOwner, owner)
	}
	s.Update(ctx, patch)
	return nil
}

// UploadImage stores a profile picture under "<user>-<kind>.<ext>" and returns a long lived signed URL.
// The extension comes from the file name, or from the detected content when the name has none.
func (s *ProfileStore) UploadImage(ctx context.Context, fileName string, data []byte, kind domain.ImageKind) (string, error) {
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedBlob, detected.String())
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		ext = strings.TrimPrefix(detected.Extension(), ".")
	}
	if ext == "" {
		ext = "png"
	}
	path := domain.ImagePath(s.self, kind, ext)

	if err := s.blobs.UploadBlob(ctx, ImageBucket, path, data, true); err != nil {
		s.log.Error("Error uploading image", "path", path, "error", err)
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	url, err := s.blobs.SignedURL(ctx, ImageBucket, path, ImageURLTTL)
	if err != nil {
		s.log.Error("Error creating signed URL", "path", path, "error", err)
		return "", fmt.Errorf("sign %s: %w", path, err)
	}
	return url, nil
}
