// Package store declares the persistence ports used by the service and the
// helpers shared by their adapters.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"commissions/internal/core"
)

// Ports for outbound adapters.
type (
	// EntryStore is the contract every entry backend satisfies. Mutations
	// return the canonical stored record.
	EntryStore interface {
		List(ctx context.Context) ([]core.RawEntry, error)
		// Create validates and normalizes the fields and assigns the ID.
		Create(ctx context.Context, e core.NewEntry) (core.RawEntry, error)
		// Delete returns core.ErrNotFound for unknown IDs.
		Delete(ctx context.Context, id string) error
		// SetTime stores a worked time; core.ClearTimeSentinel clears it.
		SetTime(ctx context.Context, id, value string) (core.RawEntry, error)
	}

	EntryGetter interface {
		Get(ctx context.Context, id string) (core.RawEntry, error)
	}

	// EntryMirror receives replicated records from another store.
	EntryMirror interface {
		Upsert(ctx context.Context, e core.RawEntry) error
		Delete(ctx context.Context, id string) error
	}

	// AllowListSource supplies the dynamically managed set of authorized emails.
	AllowListSource interface {
		AuthorizedEmails(ctx context.Context) ([]string, error)
	}

	AllowListAdmin interface {
		AllowListSource
		AddAuthorized(ctx context.Context, email string) error
		RemoveAuthorized(ctx context.Context, email string) error
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// NewID returns a fresh entry identifier.
func NewID() string {
	return uuid.NewString()
}

// NormalizeEmail lower-cases and trims an address for allow-list comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EncodeExtras renders extras as the JSON array stored by the SQL backends.
func EncodeExtras(extras []string) (string, error) {
	if len(extras) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(extras)
	if err != nil {
		return "", fmt.Errorf("encode extras: %w", err)
	}
	return string(b), nil
}

// DecodeExtras tolerates legacy non-JSON values by treating them as one tag.
func DecodeExtras(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{s}
	}
	return out
}
