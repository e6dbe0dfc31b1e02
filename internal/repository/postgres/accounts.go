package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tixledger/tixledger/internal/domain"
	"github.com/tixledger/tixledger/internal/repository"
)

type AccountsRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AccountsRepo) With(db DB) *AccountsRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AccountsRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Credit adds amount to the account, creating it if needed.
func (r *AccountsRepo) Credit(ctx context.Context, addr domain.Address, amount int64) error {
	const op = "postgres.AccountsRepo.Credit"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO accounts(address, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		encodeAddr(addr), amount,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Debit removes amount from the account. Fails with
// repository.ErrInsufficientFunds when the balance cannot cover it.
func (r *AccountsRepo) Debit(ctx context.Context, addr domain.Address, amount int64) error {
	const op = "postgres.AccountsRepo.Debit"

	db := r.handle()

	ct, err := db.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE address = $1 AND balance >= $2`,
		encodeAddr(addr), amount,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrInsufficientFunds)
	}

	return nil
}

// Balance returns the account balance; an account that was never funded has
// balance zero.
func (r *AccountsRepo) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	const op = "postgres.AccountsRepo.Balance"

	db := r.handle()

	var balance int64
	err := db.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE address = $1`,
		encodeAddr(addr),
	).Scan(&balance)
	if err != nil {
		if errors.Is(translateDBErr(err), repository.ErrNotFound) {
			return 0, nil
		}

		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return balance, nil
}
