package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/tixledger/tixledger/internal/domain"
)

type fakeRepo struct {
	balances map[domain.Address]int64
}

func (f *fakeRepo) Credit(ctx context.Context, addr domain.Address, amount int64) error {
	f.balances[addr] += amount
	return nil
}

func (f *fakeRepo) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	return f.balances[addr], nil
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	var alice domain.Address
	alice[19] = 0x0a

	tests := []struct {
		name    string
		addr    domain.Address
		amount  int64
		wantErr error
	}{
		{"valid", alice, 100, nil},
		{"zero address", domain.Address{}, 100, ErrInvalidAmount},
		{"zero amount", alice, 0, ErrInvalidAmount},
		{"negative amount", alice, -5, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{balances: make(map[domain.Address]int64)}
			svc := New(repo)

			err := svc.Deposit(ctx, tt.addr, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				got, _ := svc.Balance(ctx, tt.addr)
				if got != tt.amount {
					t.Fatalf("balance = %d, want %d", got, tt.amount)
				}
			}
		})
	}
}

func TestBalance_UnfundedReadsZero(t *testing.T) {
	ctx := context.Background()
	svc := New(&fakeRepo{balances: make(map[domain.Address]int64)})

	var addr domain.Address
	addr[19] = 0x01

	got, err := svc.Balance(ctx, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}
