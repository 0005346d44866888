package backend

import (
	"context"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

// Backend is the data service plus the full scan the worker's startup check needs.
type Backend interface {
	dataservice.Service
	ListAll(ctx context.Context) ([]core.Expense, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
	// Ping reports backend readiness. Nil for backends that are always ready.
	Ping func(ctx context.Context) error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; an empty path starts with no users or people
	SeedFile string

	// When set, preferences live in YAML files here instead of the backend
	PreferencesDir string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
