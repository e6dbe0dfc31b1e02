package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/tixledger/tixledger/internal/clock"
	"github.com/tixledger/tixledger/internal/domain"
	redisrepo "github.com/tixledger/tixledger/internal/repository/redis"
)

// Repository is the registry's slice of storage: the append-only event list
// and its organizer index.
type Repository interface {
	CreateEvent(ctx context.Context, ev domain.Event) (int64, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListEventsByOrganizer(ctx context.Context, organizer domain.Address) ([]domain.Event, error)
}

type Service struct {
	repo   Repository
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	clk    clock.Clock
}

func New(repo Repository, cache *redisrepo.Cache, pubsub *redisrepo.EventsPubSub, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Service{
		repo:   repo,
		cache:  cache,
		pubsub: pubsub,
		clk:    clk,
	}
}

// CreateEvent registers a new event with the caller as organizer and returns
// its ID. The event date is not validated against now; a past date only means
// no operation will ever be accepted on the event. A zero ticket price makes
// the event free.
//
// Returns:
//   - error: domain.ErrInvalidParameters for a zero max supply, empty name,
//     or negative price.
func (s *Service) CreateEvent(
	ctx context.Context,
	organizer domain.Address,
	name string,
	date int64,
	ticketPrice, maxSupply int64,
	metadataURI string,
) (int64, error) {
	const op = "service.registry.CreateEvent"

	if organizer == (domain.Address{}) {
		return 0, fmt.Errorf("%s:%w", op, ErrUnknownCaller)
	}

	if err := domain.ValidateEventParams(name, ticketPrice, maxSupply); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	ev := domain.Event{
		Organizer:   organizer,
		Name:        name,
		Date:        unixTime(date),
		TicketPrice: ticketPrice,
		MaxSupply:   maxSupply,
		MetadataURI: metadataURI,
		CreatedAt:   s.clk.Now(),
	}

	id, err := s.repo.CreateEvent(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, redisrepo.KeyAllEvents())
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, id)
	}

	return id, nil
}

// AllEvents returns the full event history in creation order.
func (s *Service) AllEvents(ctx context.Context) ([]domain.Event, error) {
	const op = "service.registry.AllEvents"

	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return events, nil
}

// MyEvents returns the events organized by caller, in creation order.
func (s *Service) MyEvents(ctx context.Context, caller domain.Address) ([]domain.Event, error) {
	const op = "service.registry.MyEvents"

	if caller == (domain.Address{}) {
		return nil, fmt.Errorf("%s:%w", op, ErrUnknownCaller)
	}

	events, err := s.repo.ListEventsByOrganizer(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return events, nil
}

// Event dates arrive as unix seconds, the native granularity of the ledger.
func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
