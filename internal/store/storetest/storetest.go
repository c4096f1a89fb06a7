// Package storetest holds behaviour checks shared by every EntryStore adapter.
package storetest

import (
	"context"
	"errors"
	"testing"

	"commissions/internal/core"
	"commissions/internal/store"
)

// Run exercises the EntryStore contract against stores built by newStore.
// Each subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.EntryStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("create assigns id and normalizes", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Create(ctx, core.NewEntry{
			Name:   " Poster ",
			Price:  "99,5",
			Date:   "2024-03-01",
			Type:   "Print",
			Extras: []string{"a", "b"},
			Time:   "1:30",
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if got.ID == "" {
			t.Fatalf("expected id to be assigned")
		}
		if got.Name != "Poster" || got.Price != "99.5" || got.Time != "01:30" || len(got.Extras) != 2 {
			t.Fatalf("unexpected canonical record %+v", got)
		}
		list, err := s.List(ctx)
		if err != nil || len(list) != 1 || list[0].ID != got.ID {
			t.Fatalf("unexpected list %+v (err=%v)", list, err)
		}
	})

	t.Run("create rejects invalid fields", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, core.NewEntry{Name: "x", Price: "-3", Date: "2024-01-01"})
		if !errors.Is(err, core.ErrInvalidPrice) {
			t.Fatalf("expected ErrInvalidPrice, got %v", err)
		}
		list, _ := s.List(ctx)
		if len(list) != 0 {
			t.Fatalf("nothing should be stored, got %d", len(list))
		}
	})

	t.Run("list keeps insertion order", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for _, name := range []string{"a", "b", "c"} {
			e, err := s.Create(ctx, core.NewEntry{Name: name, Price: "1", Date: "2024-01-01"})
			if err != nil {
				t.Fatalf("create %s: %v", name, err)
			}
			ids = append(ids, e.ID)
		}
		list, _ := s.List(ctx)
		for i := range ids {
			if list[i].ID != ids[i] {
				t.Fatalf("expected order %v, got %+v", ids, list)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		e, _ := s.Create(ctx, core.NewEntry{Name: "a", Price: "1", Date: "2024-01-01"})
		if err := s.Delete(ctx, e.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, e.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
		list, _ := s.List(ctx)
		if len(list) != 0 {
			t.Fatalf("expected empty list, got %+v", list)
		}
	})

	t.Run("set time and clear sentinel", func(t *testing.T) {
		s := newStore(t)
		e, _ := s.Create(ctx, core.NewEntry{Name: "a", Price: "10", Date: "2024-01-01"})

		got, err := s.SetTime(ctx, e.ID, "2:05")
		if err != nil || got.Time != "02:05" {
			t.Fatalf("set time: %+v (err=%v)", got, err)
		}
		got, err = s.SetTime(ctx, e.ID, "0:00")
		if err != nil || got.Time != "00:00" {
			t.Fatalf("explicit zero duration must be kept: %+v (err=%v)", got, err)
		}
		got, err = s.SetTime(ctx, e.ID, core.ClearTimeSentinel)
		if err != nil || got.Time != "" {
			t.Fatalf("sentinel must clear the time: %+v (err=%v)", got, err)
		}
		if _, err := s.SetTime(ctx, e.ID, "9:99"); !errors.Is(err, core.ErrInvalidTime) {
			t.Fatalf("expected ErrInvalidTime, got %v", err)
		}
		if _, err := s.SetTime(ctx, "missing", "1:00"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		list, _ := s.List(ctx)
		if list[0].Time != "" {
			t.Fatalf("cleared time must be persisted, got %q", list[0].Time)
		}
	})
}

// RunAllowList exercises the AllowListAdmin contract.
func RunAllowList(t *testing.T, newStore func(t *testing.T) store.AllowListAdmin) {
	t.Helper()
	ctx := context.Background()

	t.Run("allow list add and remove", func(t *testing.T) {
		s := newStore(t)
		if err := s.AddAuthorized(ctx, " Someone@Example.com "); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := s.AddAuthorized(ctx, "someone@example.com"); err != nil {
			t.Fatalf("add duplicate: %v", err)
		}
		got, err := s.AuthorizedEmails(ctx)
		if err != nil || len(got) != 1 || got[0] != "someone@example.com" {
			t.Fatalf("unexpected allow list %v (err=%v)", got, err)
		}
		if err := s.RemoveAuthorized(ctx, "SOMEONE@example.com"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		got, _ = s.AuthorizedEmails(ctx)
		if len(got) != 0 {
			t.Fatalf("expected empty allow list, got %v", got)
		}
	})
}
