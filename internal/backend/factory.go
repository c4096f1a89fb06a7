package backend

import (
	"context"
	"fmt"

	applog "commissions/internal/log"
	"commissions/internal/store/memory"
	"commissions/internal/store/postgres"
	"commissions/internal/store/sheets"
	"commissions/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	s, err := memory.NewFromFile(config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)

	return &BackendResult{Backend: s}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := sqlite.NewRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	opts := postgres.DefaultOptions()
	if config.PostgresMaxRetries > 0 {
		opts.MaxRetries = config.PostgresMaxRetries
	}
	if config.PostgresRetryDelay > 0 {
		opts.RetryDelay = config.PostgresRetryDelay
	}

	repo, err := postgres.NewRepository(ctx, config.PostgresURL, opts, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
	}

	f.logger.Info("Initialized PostgreSQL backend")

	return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := f.newSheetsClient(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := cli.EnsureHeader(ctx); err != nil {
		f.logger.Warn("Failed to write entries sheet header", "error", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "entries_sheet", config.GoogleEntriesSheet)

	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) newSheetsClient(ctx context.Context, config Config) (*sheets.Client, error) {
	cli, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:  config.GoogleSpreadsheetID,
		EntriesSheet:   config.GoogleEntriesSheet,
		AllowListSheet: config.GoogleAllowListSheet,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return cli, nil
}

// NewSheetsMirror builds the spreadsheet replica fed by the worker. It
// returns nil when no spreadsheet is configured or when the sheet is already
// the primary store.
func NewSheetsMirror(ctx context.Context, config Config, logger *applog.Logger) (*sheets.Client, error) {
	if config.GoogleSpreadsheetID == "" || config.Type == SheetsBackend {
		return nil, nil
	}
	f := &DefaultFactory{logger: logger}
	if f.logger == nil {
		f.logger = applog.Discard()
	}
	cli, err := f.newSheetsClient(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := cli.EnsureHeader(ctx); err != nil {
		f.logger.Warn("Failed to write mirror sheet header", "error", err)
	}
	return cli, nil
}
