// Package preferences persists the per-user settings blob.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

var _ dataservice.PreferenceRepository = (*FileStore)(nil)

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

var ErrInvalidUserID = errors.New("invalid user id")

// FileStore keeps one YAML document per user under dir. Each document maps
// core.PreferencesKey to the preferences blob.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

type document map[string]core.Preferences

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preferences directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID string) (string, error) {
	if !safeUserID.MatchString(userID) || userID == "." || userID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return filepath.Join(s.dir, userID+".yaml"), nil
}

func (s *FileStore) GetPreferences(_ context.Context, userID string) (core.Preferences, bool, error) {
	p, err := s.path(userID)
	if err != nil {
		return core.Preferences{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return core.DefaultPreferences(), false, nil
	}
	if err != nil {
		return core.Preferences{}, false, fmt.Errorf("read preferences: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return core.Preferences{}, false, fmt.Errorf("parse preferences %s: %w", p, err)
	}
	prefs, ok := doc[core.PreferencesKey]
	if !ok {
		return core.DefaultPreferences(), false, nil
	}
	return prefs.WithDefaults(), true, nil
}

func (s *FileStore) SetPreferences(_ context.Context, userID string, prefs core.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(document{core.PreferencesKey: prefs})
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
