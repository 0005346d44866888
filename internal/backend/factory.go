package backend

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	"gastos/internal/dataservice"
	"gastos/internal/dataservice/memory"
	"gastos/internal/preferences"
	"gastos/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.PreferencesDir != "" {
		files, err := preferences.NewFileStore(config.PreferencesDir)
		if err != nil {
			if result.Cleanup != nil {
				_ = result.Cleanup()
			}
			return nil, err
		}
		result.Backend = withPreferences{Backend: result.Backend, prefs: files}
		f.logger.Info("Preferences stored in files", "dir", config.PreferencesDir)
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("ping SQLite: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
		Ping:    repo.Ping,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.New()
	if config.SeedFile != "" {
		var err error
		if store, err = memory.NewFromSeedFile(config.SeedFile); err != nil {
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)

	return &BackendResult{Backend: store}, nil
}

// withPreferences routes preference reads and writes to a separate repository.
type withPreferences struct {
	Backend
	prefs dataservice.PreferenceRepository
}

func (w withPreferences) GetPreferences(ctx context.Context, userID string) (core.Preferences, bool, error) {
	return w.prefs.GetPreferences(ctx, userID)
}

func (w withPreferences) SetPreferences(ctx context.Context, userID string, p core.Preferences) error {
	return w.prefs.SetPreferences(ctx, userID, p)
}
