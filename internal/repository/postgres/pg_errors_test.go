package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tixledger/tixledger/internal/repository"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslateDBErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, repository.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, repository.ErrConflict},
		{
			"balance check violation",
			&pgconn.PgError{Code: "23514", ConstraintName: "accounts_balance_nonnegative"},
			repository.ErrInsufficientFunds,
		},
		{
			"other check violation",
			&pgconn.PgError{Code: "23514", ConstraintName: "events_sold_check"},
			repository.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translateDBErr(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("translateDBErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	t.Run("unknown errors pass through", func(t *testing.T) {
		err := errors.New("connection reset")
		if got := translateDBErr(err); !errors.Is(got, err) {
			t.Fatalf("translateDBErr rewrote %v into %v", err, got)
		}
	})
}
