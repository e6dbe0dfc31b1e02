package postgres

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tixledger/tixledger/internal/domain"
	"github.com/tixledger/tixledger/internal/repository"
)

// IsRetryable reports whether the error is a serialization failure or
// deadlock, i.e. the transaction can be resubmitted as-is.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	return false
}

func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch pge.Code {
		// unique_violation
		case "23505":
			return repository.ErrConflict
		// check_violation: the balance >= 0 and sold <= max_supply checks
		// back up the in-transaction validation
		case "23514":
			if strings.Contains(pge.ConstraintName, "balance") {
				return repository.ErrInsufficientFunds
			}
			return repository.ErrConflict
		}
	}

	return err
}

// The address columns store lowercase hex. The empty string stands for the
// zero address (no owner / no approval) so optional columns stay TEXT NOT NULL.

func encodeAddr(a domain.Address) string {
	return strings.ToLower(a.Hex())
}

func encodeOptAddr(a domain.Address) string {
	if a == (domain.Address{}) {
		return ""
	}
	return encodeAddr(a)
}

func decodeAddr(s string) domain.Address {
	if s == "" {
		return domain.Address{}
	}
	return common.HexToAddress(s)
}
