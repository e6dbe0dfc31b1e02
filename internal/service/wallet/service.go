package wallet

import (
	"context"
	"fmt"

	"github.com/tixledger/tixledger/internal/domain"
)

// Repository is the balance slice of storage. Ticket purchases debit and
// credit accounts inside the ledger transaction; this service only covers
// funding and reading balances.
type Repository interface {
	Credit(ctx context.Context, addr domain.Address, amount int64) error
	Balance(ctx context.Context, addr domain.Address) (int64, error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Deposit tops up an account. The service-world analogue of funding a wallet.
func (s *Service) Deposit(ctx context.Context, addr domain.Address, amount int64) error {
	const op = "service.wallet.Deposit"

	if addr == (domain.Address{}) || amount <= 0 {
		return fmt.Errorf("%s:%w", op, ErrInvalidAmount)
	}

	if err := s.repo.Credit(ctx, addr, amount); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Balance returns the account balance; never-funded accounts read as zero.
func (s *Service) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	const op = "service.wallet.Balance"

	balance, err := s.repo.Balance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return balance, nil
}
