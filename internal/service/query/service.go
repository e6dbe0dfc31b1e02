package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tixledger/tixledger/internal/clock"
	"github.com/tixledger/tixledger/internal/domain"
	"github.com/tixledger/tixledger/internal/repository"
	redisrepo "github.com/tixledger/tixledger/internal/repository/redis"
)

// Repository is the read-only slice of storage the view surface needs.
type Repository interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	TicketOwner(ctx context.Context, eventID, ticketID int64) (domain.Address, error)
	GetListing(ctx context.Context, eventID, ticketID int64) (*domain.Listing, error)
	ListActiveListings(ctx context.Context, eventID int64, now time.Time) ([]domain.Listing, error)
	TicketIDsByOwner(ctx context.Context, eventID int64, owner domain.Address) ([]int64, error)
	SoldTicketIDs(ctx context.Context, eventID int64) ([]int64, error)
}

type Config struct {
	EventSummaryTTL time.Duration
	ListingsTTL     time.Duration
}

// Service is the read-only view surface. Nothing here mutates ledger state;
// any caller may read any view except the organizer-only sold-ticket audit.
type Service struct {
	repo  Repository
	cache *redisrepo.Cache
	clk   clock.Clock
	cfg   Config
}

func New(repo Repository, cache *redisrepo.Cache, clk clock.Clock, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 30 * time.Second
	}

	// the active set is time-dependent, keep it short
	if cfg.ListingsTTL <= 0 {
		cfg.ListingsTTL = 5 * time.Second
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Service{
		repo:  repo,
		cache: cache,
		clk:   clk,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event summary, through the cache when one is wired.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	if s.cache == nil {
		ev, err := s.loadEvent(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return ev, nil
	}

	key := redisrepo.KeyEventSummary(id)

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			ev, err := s.loadEvent(ctx, id)
			if err != nil {
				return domain.Event{}, err
			}
			return *ev, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &event, nil
}

// OwnerOf returns the owner of an issued ticket.
//
// Returns:
//   - error: query.ErrTicketNotFound for a ticket ID that was never issued.
func (s *Service) OwnerOf(ctx context.Context, eventID, ticketID int64) (domain.Address, error) {
	const op = "service.query.OwnerOf"

	owner, err := s.repo.TicketOwner(ctx, eventID, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Address{}, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}

		return domain.Address{}, fmt.Errorf("%s:%w", op, err)
	}

	return owner, nil
}

// GetListing returns the stored listing for a ticket along with whether it is
// still active (seller owns the ticket and the expiry is in the future).
//
// Returns:
//   - error: query.ErrListingNotFound if no listing is stored.
func (s *Service) GetListing(ctx context.Context, eventID, ticketID int64) (*domain.Listing, bool, error) {
	const op = "service.query.GetListing"

	l, err := s.repo.GetListing(ctx, eventID, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("%s:%w", op, ErrListingNotFound)
		}

		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	owner, err := s.repo.TicketOwner(ctx, eventID, ticketID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	return l, l.ActiveAt(s.clk.Now(), owner), nil
}

// ActiveListings returns the event's currently buyable listings, through the
// cache when one is wired.
func (s *Service) ActiveListings(ctx context.Context, eventID int64) ([]domain.Listing, error) {
	const op = "service.query.ActiveListings"

	if s.cache == nil {
		listings, err := s.repo.ListActiveListings(ctx, eventID, s.clk.Now())
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return listings, nil
	}

	key := redisrepo.KeyEventListings(eventID)

	listings, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.ListingsTTL,
		func(ctx context.Context) ([]domain.Listing, error) {
			return s.repo.ListActiveListings(ctx, eventID, s.clk.Now())
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return listings, nil
}

// MyTickets returns the ticket IDs of the event held by caller.
func (s *Service) MyTickets(ctx context.Context, eventID int64, caller domain.Address) ([]int64, error) {
	const op = "service.query.MyTickets"

	ids, err := s.repo.TicketIDsByOwner(ctx, eventID, caller)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ids, nil
}

// SoldTickets returns every issued ticket ID of the event. Organizer only.
//
// Returns:
//   - error: domain.ErrNotOrganizer when caller did not create the event;
//     query.ErrEventNotFound for an unknown event.
func (s *Service) SoldTickets(ctx context.Context, eventID int64, caller domain.Address) ([]int64, error) {
	const op = "service.query.SoldTickets"

	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if ev.Organizer != caller {
		return nil, fmt.Errorf("%s:%w", op, domain.ErrNotOrganizer)
	}

	ids, err := s.repo.SoldTicketIDs(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ids, nil
}

func (s *Service) loadEvent(ctx context.Context, id int64) (*domain.Event, error) {
	ev, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}

		return nil, err
	}

	return ev, nil
}
