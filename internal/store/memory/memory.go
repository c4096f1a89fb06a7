package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"commissions/internal/core"
	"commissions/internal/store"
)

// Store keeps entries and the allow-list in process memory.
type Store struct {
	mu      sync.Mutex
	order   []string
	entries map[string]core.RawEntry
	users   map[string]struct{}
}

var (
	_ store.EntryStore     = (*Store)(nil)
	_ store.EntryGetter    = (*Store)(nil)
	_ store.EntryMirror    = (*Store)(nil)
	_ store.AllowListAdmin = (*Store)(nil)
)

// New returns a store holding a copy of seed. Seed records without an ID get one.
func New(seed []core.RawEntry) *Store {
	s := &Store{
		entries: make(map[string]core.RawEntry, len(seed)),
		users:   map[string]struct{}{},
	}
	for _, e := range seed {
		if e.ID == "" {
			e.ID = store.NewID()
		}
		if _, dup := s.entries[e.ID]; !dup {
			s.order = append(s.order, e.ID)
		}
		s.entries[e.ID] = clone(e)
	}
	return s
}

// NewFromFile seeds the store from a JSON array of entries. A missing path
// yields an empty store.
func NewFromFile(path string) (*Store, error) {
	if path == "" {
		return New(nil), nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.RawEntry
	if err := json.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return New(seed), nil
}

func (s *Store) List(_ context.Context) ([]core.RawEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RawEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.entries[id]))
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.RawEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.RawEntry{}, fmt.Errorf("get %s: %w", id, core.ErrNotFound)
	}
	return clone(e), nil
}

func (s *Store) Create(_ context.Context, n core.NewEntry) (core.RawEntry, error) {
	raw, err := n.Normalize()
	if err != nil {
		return core.RawEntry{}, err
	}
	raw.ID = store.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[raw.ID] = raw
	s.order = append(s.order, raw.ID)
	return clone(raw), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) SetTime(_ context.Context, id, value string) (core.RawEntry, error) {
	t, err := core.NormalizeTime(value)
	if err != nil {
		return core.RawEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.RawEntry{}, fmt.Errorf("set time %s: %w", id, core.ErrNotFound)
	}
	e.Time = t
	s.entries[id] = e
	return clone(e), nil
}

// Upsert stores e as-is, replacing any record with the same ID.
func (s *Store) Upsert(_ context.Context, e core.RawEntry) error {
	if e.ID == "" {
		return fmt.Errorf("upsert: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.entries[e.ID] = clone(e)
	return nil
}

func (s *Store) AuthorizedEmails(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for u := range s.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AddAuthorized(_ context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("add authorized: empty email")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = struct{}{}
	return nil
}

func (s *Store) RemoveAuthorized(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, store.NormalizeEmail(email))
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func clone(e core.RawEntry) core.RawEntry {
	e.Extras = append([]string(nil), e.Extras...)
	if len(e.Extras) == 0 {
		e.Extras = nil
	}
	return e
}
