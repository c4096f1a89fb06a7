package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"commissions/internal/store"
	"commissions/internal/store/storetest"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"postgresql://u:p@db:5432/app", "postgres://u:p@db:5432/app?sslmode=disable"},
		{"postgres://db/app?application_name=x", "postgres://db/app?application_name=x&sslmode=disable"},
		{"postgres://db/app?sslmode=require", "postgres://db/app?sslmode=require"},
	}
	for _, tc := range cases {
		if got := NormalizeURL(tc.in); got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestRepositoryContract runs against a disposable database named by
// POSTGRES_TEST_URL. Every subtest truncates the tables first.
func TestRepositoryContract(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	repo, err := NewRepository(ctx, url, Options{MaxRetries: 3, RetryDelay: time.Second}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	fresh := func(t *testing.T) *Repository {
		if _, err := repo.db.ExecContext(ctx, `TRUNCATE entries, authorized_users`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return repo
	}
	storetest.Run(t, func(t *testing.T) store.EntryStore { return fresh(t) })
	storetest.RunAllowList(t, func(t *testing.T) store.AllowListAdmin { return fresh(t) })
}
