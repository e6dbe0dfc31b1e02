package postgres

import (
	"context"
	"fmt"

	"github.com/tixledger/tixledger/internal/domain"
	"github.com/tixledger/tixledger/internal/repository"
)

// LedgerRepo implements repository.Ledger on top of Serializable transactions.
// The event row is locked FOR UPDATE on first read, which linearizes every
// state-changing request against the same event.
type LedgerRepo struct {
	store *Store
}

func (r *LedgerRepo) UpdateEvent(
	ctx context.Context,
	eventID int64,
	fn func(ctx context.Context, tx repository.EventTx) error,
) error {
	const op = "postgres.LedgerRepo.UpdateEvent"

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, db DB) error {
		return fn(ctx, &eventTx{
			db:       db,
			eventID:  eventID,
			accounts: r.store.Accounts().With(db),
		})
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

type eventTx struct {
	db       DB
	eventID  int64
	accounts *AccountsRepo
}

func (t *eventTx) Event(ctx context.Context) (*domain.Event, error) {
	const op = "postgres.eventTx.Event"

	var ev domain.Event
	var organizer string

	err := t.db.QueryRow(ctx,
		`SELECT id, organizer, name, event_date, ticket_price, max_supply, sold, metadata_uri, created_at
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		t.eventID,
	).Scan(
		&ev.ID,
		&organizer,
		&ev.Name,
		&ev.Date,
		&ev.TicketPrice,
		&ev.MaxSupply,
		&ev.Sold,
		&ev.MetadataURI,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	ev.Organizer = decodeAddr(organizer)

	return &ev, nil
}

func (t *eventTx) Ticket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	const op = "postgres.eventTx.Ticket"

	var tk domain.Ticket
	var owner, approved string

	err := t.db.QueryRow(ctx,
		`SELECT event_id, ticket_id, owner, approved_spender, issued_at
		 FROM tickets
		 WHERE event_id = $1 AND ticket_id = $2`,
		t.eventID, ticketID,
	).Scan(&tk.EventID, &tk.ID, &owner, &approved, &tk.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	tk.Owner = decodeAddr(owner)
	tk.Approved = decodeAddr(approved)

	return &tk, nil
}

func (t *eventTx) Listing(ctx context.Context, ticketID int64) (*domain.Listing, error) {
	const op = "postgres.eventTx.Listing"

	var l domain.Listing
	var seller string

	err := t.db.QueryRow(ctx,
		`SELECT event_id, ticket_id, seller, price, expires_at, created_at
		 FROM listings
		 WHERE event_id = $1 AND ticket_id = $2`,
		t.eventID, ticketID,
	).Scan(&l.EventID, &l.TicketID, &seller, &l.Price, &l.ExpiresAt, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	l.Seller = decodeAddr(seller)

	return &l, nil
}

func (t *eventTx) SetSold(ctx context.Context, sold int64) error {
	const op = "postgres.eventTx.SetSold"

	ct, err := t.db.Exec(ctx,
		`UPDATE events SET sold = $2 WHERE id = $1`,
		t.eventID, sold,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (t *eventTx) InsertTicket(ctx context.Context, tk domain.Ticket) error {
	const op = "postgres.eventTx.InsertTicket"

	_, err := t.db.Exec(ctx,
		`INSERT INTO tickets(event_id, ticket_id, owner, approved_spender, issued_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.eventID, tk.ID, encodeAddr(tk.Owner), encodeOptAddr(tk.Approved), tk.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (t *eventTx) SaveTicket(ctx context.Context, tk domain.Ticket) error {
	const op = "postgres.eventTx.SaveTicket"

	ct, err := t.db.Exec(ctx,
		`UPDATE tickets
		 SET owner = $3, approved_spender = $4
		 WHERE event_id = $1 AND ticket_id = $2`,
		t.eventID, tk.ID, encodeAddr(tk.Owner), encodeOptAddr(tk.Approved),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (t *eventTx) SaveListing(ctx context.Context, l domain.Listing) error {
	const op = "postgres.eventTx.SaveListing"

	_, err := t.db.Exec(ctx,
		`INSERT INTO listings(event_id, ticket_id, seller, price, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (event_id, ticket_id) DO UPDATE
		 SET seller = EXCLUDED.seller,
		     price = EXCLUDED.price,
		     expires_at = EXCLUDED.expires_at,
		     created_at = EXCLUDED.created_at`,
		t.eventID, l.TicketID, encodeAddr(l.Seller), l.Price, l.ExpiresAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (t *eventTx) DeleteListing(ctx context.Context, ticketID int64) error {
	const op = "postgres.eventTx.DeleteListing"

	_, err := t.db.Exec(ctx,
		`DELETE FROM listings WHERE event_id = $1 AND ticket_id = $2`,
		t.eventID, ticketID,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (t *eventTx) Pay(ctx context.Context, p domain.Payment) error {
	const op = "postgres.eventTx.Pay"

	if p.Amount == 0 {
		return nil
	}

	if err := t.accounts.Debit(ctx, p.From, p.Amount); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := t.accounts.Credit(ctx, p.To, p.Amount); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
