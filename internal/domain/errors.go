package domain

import "errors"

// Rejection reasons of the ledger state machine. Every one of them aborts the
// whole request with no partial effect.
var (
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrSoldOut           = errors.New("sold out")
	ErrWrongPayment      = errors.New("wrong payment amount")
	ErrEventExpired      = errors.New("event has passed")
	ErrNotOwner          = errors.New("caller does not own the ticket")
	ErrNotApproved       = errors.New("no spender approved for the ticket")
	ErrNoActiveListing   = errors.New("no active listing for the ticket")
	ErrNotSeller         = errors.New("caller is not the listing seller")
	ErrListingExpired    = errors.New("listing has expired")
	ErrSelfPurchase      = errors.New("seller cannot buy their own listing")
	ErrNotOrganizer      = errors.New("caller is not the event organizer")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
