package repository

import (
	"context"

	"github.com/tixledger/tixledger/internal/domain"
)

// EventTx is the view of one event's ledger state inside an atomic unit.
// Reads see the state as of the start of the unit; staged writes become
// visible to later reads within the same unit and are either committed as a
// whole or discarded.
//
// Ticket and Listing return ErrNotFound for rows that do not exist; callers
// translate that to nil state for the domain transitions.
type EventTx interface {
	Event(ctx context.Context) (*domain.Event, error)
	Ticket(ctx context.Context, ticketID int64) (*domain.Ticket, error)
	Listing(ctx context.Context, ticketID int64) (*domain.Listing, error)

	SetSold(ctx context.Context, sold int64) error
	InsertTicket(ctx context.Context, t domain.Ticket) error
	SaveTicket(ctx context.Context, t domain.Ticket) error
	SaveListing(ctx context.Context, l domain.Listing) error
	DeleteListing(ctx context.Context, ticketID int64) error

	// Pay moves funds between balance accounts. It must be the last write of
	// the unit so a malicious recipient can never observe half-updated state.
	// Fails with ErrInsufficientFunds when the payer cannot cover the amount.
	Pay(ctx context.Context, p domain.Payment) error
}

// Ledger serializes state-changing requests against a single event. UpdateEvent
// runs fn with exclusive access to the event's state; fn either commits fully
// or leaves no trace. ErrNotFound is returned for an unknown event.
type Ledger interface {
	UpdateEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, tx EventTx) error) error
}
