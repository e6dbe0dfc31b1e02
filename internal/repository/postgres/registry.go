package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tixledger/tixledger/internal/domain"
)

type RegistryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *RegistryRepo) With(db DB) *RegistryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *RegistryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CreateEvent appends a new event to the registry and returns its ID.
// Events are never deleted; creation order is the ID order.
func (r *RegistryRepo) CreateEvent(ctx context.Context, ev domain.Event) (int64, error) {
	const op = "postgres.RegistryRepo.CreateEvent"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO events(organizer, name, event_date, ticket_price, max_supply, sold, metadata_uri, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		 RETURNING id`,
		encodeAddr(ev.Organizer),
		ev.Name,
		ev.Date,
		ev.TicketPrice,
		ev.MaxSupply,
		ev.MetadataURI,
		ev.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// ListEvents returns the full event history in creation order.
func (r *RegistryRepo) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const op = "postgres.RegistryRepo.ListEvents"

	events, err := r.scanEvents(ctx,
		`SELECT id, organizer, name, event_date, ticket_price, max_supply, sold, metadata_uri, created_at
		 FROM events
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return events, nil
}

// ListEventsByOrganizer returns the events created by organizer, in creation order.
func (r *RegistryRepo) ListEventsByOrganizer(ctx context.Context, organizer domain.Address) ([]domain.Event, error) {
	const op = "postgres.RegistryRepo.ListEventsByOrganizer"

	events, err := r.scanEvents(ctx,
		`SELECT id, organizer, name, event_date, ticket_price, max_supply, sold, metadata_uri, created_at
		 FROM events
		 WHERE organizer = $1
		 ORDER BY id`,
		encodeAddr(organizer),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return events, nil
}

func (r *RegistryRepo) scanEvents(ctx context.Context, sql string, args ...any) ([]domain.Event, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateDBErr(err)
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var organizer string

		if err := rows.Scan(
			&ev.ID,
			&organizer,
			&ev.Name,
			&ev.Date,
			&ev.TicketPrice,
			&ev.MaxSupply,
			&ev.Sold,
			&ev.MetadataURI,
			&ev.CreatedAt,
		); err != nil {
			return nil, translateDBErr(err)
		}

		ev.Organizer = decodeAddr(organizer)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
