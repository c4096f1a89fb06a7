package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commissions/internal/config"
	"commissions/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "dynamo"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "sqlite",
		SQLiteDBPath:        "/tmp/x.db",
		GoogleSpreadsheetID: "sheet",
		GoogleEntriesSheet:  "Entries",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "/tmp/x.db", cfg.SQLiteDBPath)
	assert.Equal(t, "Entries", cfg.GoogleEntriesSheet)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"postgres", Config{Type: PostgresBackend, PostgresURL: "postgres://db/app"}, false},
		{"sheets without id", Config{Type: SheetsBackend}, true},
		{"unknown", Config{Type: "dynamo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"memory", "sqlite", "postgres", "sheets"}, GetBackendTypeStrings())
}

func TestCreateMemoryAndSQLiteBackends(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "app.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateBackend(ctx, cfg)
			require.NoError(t, err)
			defer res.Close()

			created, err := res.Backend.Create(ctx, core.NewEntry{Name: "Logo", Price: "10", Date: "2024-01-01"})
			require.NoError(t, err)
			got, err := res.Backend.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "Logo", got.Name)
			assert.NoError(t, res.Backend.Ping(ctx))
		})
	}
}

func TestNewSheetsMirrorDisabled(t *testing.T) {
	m, err := NewSheetsMirror(context.Background(), Config{Type: SQLiteBackend}, nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewSheetsMirror(context.Background(), Config{Type: SheetsBackend, GoogleSpreadsheetID: "x"}, nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestBackendResultCloseNil(t *testing.T) {
	var r *BackendResult
	assert.NoError(t, r.Close())
	assert.NoError(t, (&BackendResult{}).Close())
}
