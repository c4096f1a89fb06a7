// Package sheets stores entries and the allow-list in a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"commissions/internal/core"
	applog "commissions/internal/log"
	"commissions/internal/store"
)

type Config struct {
	SpreadsheetID  string
	EntriesSheet   string
	AllowListSheet string
}

// values is the subset of the Sheets values API the client relies on.
type values interface {
	get(ctx context.Context, rng string) ([][]any, error)
	append(ctx context.Context, rng string, rows [][]any) error
	update(ctx context.Context, rng string, rows [][]any) error
	clear(ctx context.Context, rng string) error
}

type Client struct {
	api            values
	entriesSheet   string
	allowListSheet string
	logger         *applog.Logger

	// Serializes lookups followed by positional writes.
	mu sync.Mutex
}

// Ensure interface conformance
var (
	_ store.EntryStore     = (*Client)(nil)
	_ store.EntryGetter    = (*Client)(nil)
	_ store.EntryMirror    = (*Client)(nil)
	_ store.AllowListAdmin = (*Client)(nil)
	_ store.Pinger         = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	svc, err := newSheetsService(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&googleValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, cfg, logger), nil
}

func newClient(api values, cfg Config, logger *applog.Logger) *Client {
	if cfg.EntriesSheet == "" {
		cfg.EntriesSheet = "Commissions"
	}
	if cfg.AllowListSheet == "" {
		cfg.AllowListSheet = "AuthorizedUsers"
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		api:            api,
		entriesSheet:   cfg.EntriesSheet,
		allowListSheet: cfg.AllowListSheet,
		logger:         logger,
	}
}

func newSheetsService(ctx context.Context, logger *applog.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		logger.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// a1 builds an A1-notation range on a quoted sheet name.
func a1(sheet, ref string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), ref)
}

func rowRange(sheet string, row int) string {
	return a1(sheet, fmt.Sprintf("A%d:G%d", row, row))
}

// EnsureHeader writes the column header when the entries sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	vals, err := c.api.get(ctx, a1(c.entriesSheet, "A1:G1"))
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(vals) > 0 && len(vals[0]) > 0 {
		return nil
	}
	return c.api.update(ctx, a1(c.entriesSheet, "A1:G1"), [][]any{entryHeader})
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.get(ctx, a1(c.entriesSheet, "A1"))
	return err
}

func (c *Client) List(ctx context.Context) ([]core.RawEntry, error) {
	vals, err := c.api.get(ctx, a1(c.entriesSheet, "A:G"))
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	out := make([]core.RawEntry, 0, len(vals))
	for _, row := range vals {
		if e, ok := rowToEntry(row); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// findRow returns the 1-based sheet row holding id, or 0.
func (c *Client) findRow(ctx context.Context, id string) (int, error) {
	vals, err := c.api.get(ctx, a1(c.entriesSheet, "A:A"))
	if err != nil {
		return 0, fmt.Errorf("read ids: %w", err)
	}
	if i := indexOf(vals, id, false); i >= 0 {
		return i + 1, nil
	}
	return 0, nil
}

func (c *Client) readRow(ctx context.Context, row int) (core.RawEntry, error) {
	vals, err := c.api.get(ctx, rowRange(c.entriesSheet, row))
	if err != nil {
		return core.RawEntry{}, fmt.Errorf("read row %d: %w", row, err)
	}
	if len(vals) == 0 {
		return core.RawEntry{}, core.ErrNotFound
	}
	e, ok := rowToEntry(vals[0])
	if !ok {
		return core.RawEntry{}, core.ErrNotFound
	}
	return e, nil
}

func (c *Client) Get(ctx context.Context, id string) (core.RawEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, err := c.findRow(ctx, id)
	if err != nil {
		return core.RawEntry{}, err
	}
	if row == 0 {
		return core.RawEntry{}, fmt.Errorf("get %s: %w", id, core.ErrNotFound)
	}
	return c.readRow(ctx, row)
}

func (c *Client) Create(ctx context.Context, n core.NewEntry) (core.RawEntry, error) {
	raw, err := n.Normalize()
	if err != nil {
		return core.RawEntry{}, err
	}
	raw.ID = store.NewID()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.api.append(ctx, a1(c.entriesSheet, "A:G"), [][]any{entryToRow(raw)}); err != nil {
		return core.RawEntry{}, fmt.Errorf("append entry to %s: %w", c.entriesSheet, err)
	}
	c.logger.InfoContext(ctx, "Entry appended to sheet",
		applog.NewFields().WithEntry(raw.ID, raw.Name, raw.Price, raw.Date, raw.Time).WithOperation(applog.OpCreate).ToSlice()...)
	return raw, nil
}

// Delete blanks the row so positions of later rows stay stable.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	if err := c.api.clear(ctx, rowRange(c.entriesSheet, row)); err != nil {
		return fmt.Errorf("clear row %d: %w", row, err)
	}
	return nil
}

func (c *Client) SetTime(ctx context.Context, id, value string) (core.RawEntry, error) {
	t, err := core.NormalizeTime(value)
	if err != nil {
		return core.RawEntry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	row, err := c.findRow(ctx, id)
	if err != nil {
		return core.RawEntry{}, err
	}
	if row == 0 {
		return core.RawEntry{}, fmt.Errorf("set time %s: %w", id, core.ErrNotFound)
	}
	if err := c.api.update(ctx, a1(c.entriesSheet, fmt.Sprintf("G%d", row)), [][]any{{t}}); err != nil {
		return core.RawEntry{}, fmt.Errorf("update time in row %d: %w", row, err)
	}
	return c.readRow(ctx, row)
}

func (c *Client) Upsert(ctx context.Context, e core.RawEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return err
	}
	if row == 0 {
		return c.api.append(ctx, a1(c.entriesSheet, "A:G"), [][]any{entryToRow(e)})
	}
	return c.api.update(ctx, rowRange(c.entriesSheet, row), [][]any{entryToRow(e)})
}

func (c *Client) AuthorizedEmails(ctx context.Context) ([]string, error) {
	vals, err := c.api.get(ctx, a1(c.allowListSheet, "A:A"))
	if err != nil {
		return nil, fmt.Errorf("read allow list: %w", err)
	}
	return readEmails(vals), nil
}

func (c *Client) AddAuthorized(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if email == "" {
		return errors.New("add authorized: empty email")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	vals, err := c.api.get(ctx, a1(c.allowListSheet, "A:A"))
	if err != nil {
		return fmt.Errorf("read allow list: %w", err)
	}
	if indexOf(vals, email, true) >= 0 {
		return nil
	}
	return c.api.append(ctx, a1(c.allowListSheet, "A:A"), [][]any{{email}})
}

func (c *Client) RemoveAuthorized(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	c.mu.Lock()
	defer c.mu.Unlock()
	vals, err := c.api.get(ctx, a1(c.allowListSheet, "A:A"))
	if err != nil {
		return fmt.Errorf("read allow list: %w", err)
	}
	for i, row := range vals {
		if len(row) == 0 || store.NormalizeEmail(fmt.Sprint(row[0])) != email {
			continue
		}
		if err := c.api.clear(ctx, a1(c.allowListSheet, fmt.Sprintf("A%d", i+1))); err != nil {
			return fmt.Errorf("clear allow list row %d: %w", i+1, err)
		}
	}
	return nil
}

type googleValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (g *googleValues) get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// RAW input keeps prices and durations as typed text instead of letting
// Sheets reinterpret them as numbers or times.
func (g *googleValues) append(ctx context.Context, rng string, rows [][]any) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (g *googleValues) update(ctx context.Context, rng string, rows [][]any) error {
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleValues) clear(ctx context.Context, rng string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}
