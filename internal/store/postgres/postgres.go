// Package postgres persists entries and the allow-list in PostgreSQL through
// the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"commissions/internal/core"
	applog "commissions/internal/log"
	"commissions/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Repository struct {
	db     *sql.DB
	logger *applog.Logger
}

var (
	_ store.EntryStore     = (*Repository)(nil)
	_ store.EntryGetter    = (*Repository)(nil)
	_ store.EntryMirror    = (*Repository)(nil)
	_ store.AllowListAdmin = (*Repository)(nil)
	_ store.Pinger         = (*Repository)(nil)
)

// Options tune the connection retry loop used while the database boots.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{MaxRetries: 10, RetryDelay: 2 * time.Second}
}

// NormalizeURL maps postgresql:// to postgres:// and defaults sslmode to disable.
func NormalizeURL(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgresql://") {
		databaseURL = "postgres://" + strings.TrimPrefix(databaseURL, "postgresql://")
	}
	if databaseURL != "" && !strings.Contains(databaseURL, "sslmode=") {
		sep := "?"
		if strings.Contains(databaseURL, "?") {
			sep = "&"
		}
		databaseURL += sep + "sslmode=disable"
	}
	return databaseURL
}

func NewRepository(ctx context.Context, databaseURL string, opts Options, logger *applog.Logger) (*Repository, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentStore)
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}

	cfg, err := pgx.ParseConfig(NormalizeURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	var db *sql.DB
	for i := 0; i < opts.MaxRetries; i++ {
		db = stdlib.OpenDB(*cfg)
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		db.Close()
		if i == opts.MaxRetries-1 {
			return nil, fmt.Errorf("connect to database after %d attempts: %w", opts.MaxRetries, err)
		}
		logger.Warn("Database not ready, retrying",
			"attempt", i+1, "max_attempts", opts.MaxRetries, "retry_in", opts.RetryDelay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established")
	return &Repository{db: db, logger: logger}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would close the shared *sql.DB, so the instance is left for GC.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

const selectEntry = `SELECT id, name, price, date, type, extras::text, time FROM entries`

func (r *Repository) List(ctx context.Context) ([]core.RawEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.RawEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (core.RawEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectEntry+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RawEntry{}, fmt.Errorf("get %s: %w", id, core.ErrNotFound)
	}
	return e, err
}

func (r *Repository) Create(ctx context.Context, n core.NewEntry) (core.RawEntry, error) {
	raw, err := n.Normalize()
	if err != nil {
		return core.RawEntry{}, err
	}
	raw.ID = store.NewID()
	extras, err := store.EncodeExtras(raw.Extras)
	if err != nil {
		return core.RawEntry{}, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entries (id, name, price, date, type, extras, time) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		raw.ID, raw.Name, raw.Price, raw.Date, raw.Type, extras, raw.Time)
	if err != nil {
		return core.RawEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	r.logger.InfoContext(ctx, "Entry saved to PostgreSQL",
		applog.NewFields().WithEntry(raw.ID, raw.Name, raw.Price, raw.Date, raw.Time).WithOperation(applog.OpCreate).ToSlice()...)
	return raw, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) SetTime(ctx context.Context, id, value string) (core.RawEntry, error) {
	t, err := core.NormalizeTime(value)
	if err != nil {
		return core.RawEntry{}, err
	}
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`UPDATE entries SET time = $1, updated_at = now() WHERE id = $2
		 RETURNING id, name, price, date, type, extras::text, time`, t, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RawEntry{}, fmt.Errorf("set time %s: %w", id, core.ErrNotFound)
	}
	return e, err
}

func (r *Repository) Upsert(ctx context.Context, e core.RawEntry) error {
	extras, err := store.EncodeExtras(e.Extras)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entries (id, name, price, date, type, extras, time) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, date = EXCLUDED.date,
			type = EXCLUDED.type, extras = EXCLUDED.extras, time = EXCLUDED.time,
			updated_at = now()`,
		e.ID, e.Name, e.Price, e.Date, e.Type, extras, e.Time)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (r *Repository) AuthorizedEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT email FROM authorized_users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list authorized users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan authorized user: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (r *Repository) AddAuthorized(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("add authorized: empty email")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO authorized_users (email) VALUES ($1) ON CONFLICT DO NOTHING`, email)
	if err != nil {
		return fmt.Errorf("add authorized user: %w", err)
	}
	return nil
}

func (r *Repository) RemoveAuthorized(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM authorized_users WHERE email = $1`, store.NormalizeEmail(email)); err != nil {
		return fmt.Errorf("remove authorized user: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (core.RawEntry, error) {
	var (
		e      core.RawEntry
		extras string
	)
	if err := s.Scan(&e.ID, &e.Name, &e.Price, &e.Date, &e.Type, &extras, &e.Time); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.RawEntry{}, err
		}
		return core.RawEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Extras = store.DecodeExtras(extras)
	return e, nil
}
