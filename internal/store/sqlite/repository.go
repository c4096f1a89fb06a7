package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"commissions/internal/core"
	applog "commissions/internal/log"
	"commissions/internal/store"

	_ "modernc.org/sqlite"
)

// Repository stores entries and the allow-list in a SQLite database.
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

func NewRepository(dbPath string, logger *applog.Logger) (*Repository, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, logger: logger.WithComponent(applog.ComponentStore)}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectEntry = `SELECT id, name, price, date, type, extras, time FROM entries`

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
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id))
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
	if err := r.insert(ctx, raw); err != nil {
		return core.RawEntry{}, err
	}

	r.logger.InfoContext(ctx, "Entry saved to SQLite",
		applog.NewFields().WithEntry(raw.ID, raw.Name, raw.Price, raw.Date, raw.Time).WithOperation(applog.OpCreate).ToSlice()...)

	return raw, nil
}

func (r *Repository) insert(ctx context.Context, e core.RawEntry) error {
	extras, err := store.EncodeExtras(e.Extras)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entries (id, name, price, date, type, extras, time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Price, e.Date, e.Type, extras, e.Time)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
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
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET time = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, t, id)
	if err != nil {
		return core.RawEntry{}, fmt.Errorf("update entry time: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.RawEntry{}, fmt.Errorf("set time %s: %w", id, core.ErrNotFound)
	}
	return r.Get(ctx, id)
}

// Upsert writes a replicated record, keeping the original insertion position.
func (r *Repository) Upsert(ctx context.Context, e core.RawEntry) error {
	extras, err := store.EncodeExtras(e.Extras)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entries (id, name, price, date, type, extras, time) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, price = excluded.price, date = excluded.date,
			type = excluded.type, extras = excluded.extras, time = excluded.time,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
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
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO authorized_users (email) VALUES (?)`, email); err != nil {
		return fmt.Errorf("add authorized user: %w", err)
	}
	return nil
}

func (r *Repository) RemoveAuthorized(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM authorized_users WHERE email = ?`, store.NormalizeEmail(email)); err != nil {
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
