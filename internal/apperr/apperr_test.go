package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commissions/internal/core"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		typ    Type
		status int
	}{
		{
			name:   "not found sentinel",
			err:    fmt.Errorf("delete x: %w", core.ErrNotFound),
			typ:    TypeNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "invalid price",
			err:    fmt.Errorf("%w: %q", core.ErrInvalidPrice, "abc"),
			typ:    TypeValidation,
			status: http.StatusBadRequest,
		},
		{
			name:   "wrapped app error passes through",
			err:    fmt.Errorf("gate: %w", Forbidden("You are not authorized to log in.")),
			typ:    TypeForbidden,
			status: http.StatusForbidden,
		},
		{
			name:   "unavailable",
			err:    Unavailable("Failed to check user authorization.", errors.New("boom")),
			typ:    TypeUnavailable,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "unknown error is internal",
			err:    errors.New("disk on fire"),
			typ:    TypeInternal,
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.typ, got.Type)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestAppErrorIs(t *testing.T) {
	sentinel := Forbidden("nope")
	wrapped := fmt.Errorf("outer: %w", Forbidden("nope"))

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, Forbidden("other")))
	assert.Nil(t, From(nil))
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Internal("failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by: root")
}
