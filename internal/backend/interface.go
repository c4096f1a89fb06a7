package backend

import (
	"context"
	"time"

	"commissions/internal/store"
)

// Backend is the full set of storage ports every adapter provides.
type Backend interface {
	store.EntryStore
	store.EntryGetter
	store.EntryMirror
	store.AllowListAdmin
	store.Pinger
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Close runs the cleanup function when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Memory backend specific
	MemorySeedFile string

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	PostgresURL        string
	PostgresMaxRetries int
	PostgresRetryDelay time.Duration

	// Google Sheets specific
	GoogleSpreadsheetID  string
	GoogleEntriesSheet   string
	GoogleAllowListSheet string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	SheetsBackend   BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
