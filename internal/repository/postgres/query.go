package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tixledger/tixledger/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves one event.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.QueryRepo.GetEvent"

	db := r.handle()

	var ev domain.Event
	var organizer string

	err := db.QueryRow(ctx,
		`SELECT id, organizer, name, event_date, ticket_price, max_supply, sold, metadata_uri, created_at
		 FROM events
		 WHERE id = $1`,
		id,
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

// TicketOwner returns the owner of an issued ticket.
//
// Returns:
//   - error: repository.ErrNotFound if the ticket was never issued.
func (r *QueryRepo) TicketOwner(ctx context.Context, eventID, ticketID int64) (domain.Address, error) {
	const op = "postgres.QueryRepo.TicketOwner"

	db := r.handle()

	var owner string
	err := db.QueryRow(ctx,
		`SELECT owner FROM tickets WHERE event_id = $1 AND ticket_id = $2`,
		eventID, ticketID,
	).Scan(&owner)
	if err != nil {
		return domain.Address{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return decodeAddr(owner), nil
}

// GetListing returns the stored listing for a ticket, stale or not.
//
// Returns:
//   - error: repository.ErrNotFound if no listing is stored.
func (r *QueryRepo) GetListing(ctx context.Context, eventID, ticketID int64) (*domain.Listing, error) {
	const op = "postgres.QueryRepo.GetListing"

	db := r.handle()

	var l domain.Listing
	var seller string

	err := db.QueryRow(ctx,
		`SELECT event_id, ticket_id, seller, price, expires_at, created_at
		 FROM listings
		 WHERE event_id = $1 AND ticket_id = $2`,
		eventID, ticketID,
	).Scan(&l.EventID, &l.TicketID, &seller, &l.Price, &l.ExpiresAt, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	l.Seller = decodeAddr(seller)

	return &l, nil
}

// ListActiveListings returns the listings of an event that can still be
// bought at now: the seller still owns the ticket and the expiry is in the
// future. Stale rows are simply filtered out, not deleted.
func (r *QueryRepo) ListActiveListings(ctx context.Context, eventID int64, now time.Time) ([]domain.Listing, error) {
	const op = "postgres.QueryRepo.ListActiveListings"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT l.event_id, l.ticket_id, l.seller, l.price, l.expires_at, l.created_at
		 FROM listings l
		 JOIN tickets t ON t.event_id = l.event_id AND t.ticket_id = l.ticket_id
		 WHERE l.event_id = $1 AND l.seller = t.owner AND l.expires_at > $2
		 ORDER BY l.ticket_id`,
		eventID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		var seller string

		if err := rows.Scan(&l.EventID, &l.TicketID, &seller, &l.Price, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		l.Seller = decodeAddr(seller)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// TicketIDsByOwner returns the IDs of the event's tickets held by owner,
// in issuance order.
func (r *QueryRepo) TicketIDsByOwner(ctx context.Context, eventID int64, owner domain.Address) ([]int64, error) {
	const op = "postgres.QueryRepo.TicketIDsByOwner"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT ticket_id FROM tickets
		 WHERE event_id = $1 AND owner = $2
		 ORDER BY ticket_id`,
		eventID, encodeAddr(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// SoldTicketIDs returns every issued ticket ID of the event, in issuance order.
func (r *QueryRepo) SoldTicketIDs(ctx context.Context, eventID int64) ([]int64, error) {
	const op = "postgres.QueryRepo.SoldTicketIDs"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT ticket_id FROM tickets WHERE event_id = $1 ORDER BY ticket_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
