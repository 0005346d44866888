package preferences

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

// Service reads and updates preferences, falling back to defaults when the
// repository has nothing or fails.
type Service struct {
	repo dataservice.PreferenceRepository
}

func NewService(repo dataservice.PreferenceRepository) *Service {
	return &Service{repo: repo}
}

// Get never fails: a broken store yields the defaults and a logged warning.
func (s *Service) Get(ctx context.Context, userID string) core.Preferences {
	p, found, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read preferences, using defaults", "user_id", userID, "error", err)
		return core.DefaultPreferences()
	}
	if !found {
		return core.DefaultPreferences()
	}
	return p.WithDefaults()
}

// Update merges the non-empty fields of patch into the stored preferences.
func (s *Service) Update(ctx context.Context, userID string, patch core.Preferences) (core.Preferences, error) {
	current := s.Get(ctx, userID)
	if patch.Currency != "" {
		current.Currency = patch.Currency
	}
	if patch.Theme != "" {
		current.Theme = patch.Theme
	}
	if patch.Language != "" {
		current.Language = patch.Language
	}
	if err := current.Validate(); err != nil {
		return core.Preferences{}, err
	}
	if err := s.repo.SetPreferences(ctx, userID, current); err != nil {
		return core.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return current, nil
}
