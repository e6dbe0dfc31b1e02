package market

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

// Service drives the per-event ticket state machine: primary sales, transfer
// authorization, resale listings, and listed purchases. Every operation is
// one atomic unit against the ledger; within a unit all ownership and listing
// mutations are staged before the payment is applied.
type Service struct {
	ledger  repository.Ledger
	cache   *redisrepo.Cache
	pubsub  *redisrepo.EventsPubSub
	limiter *redisrepo.SlidingWindowLimiter
	clk     clock.Clock
}

func New(
	ledger repository.Ledger,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Service{
		ledger:  ledger,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		clk:     clk,
	}
}

// BuyTicket issues the next ticket of the event to buyer against an exact
// payment of the ticket price, forwarding the proceeds to the organizer.
//
// Returns:
//   - int64: the issued ticket ID.
//   - error: market.ErrEventNotFound, market.ErrRateLimited, or one of
//     domain.ErrSoldOut, domain.ErrWrongPayment, domain.ErrEventExpired,
//     domain.ErrInsufficientFunds.
func (s *Service) BuyTicket(
	ctx context.Context,
	eventID int64,
	buyer domain.Address,
	payment int64,
	rlKey string,
) (int64, error) {
	const op = "service.market.BuyTicket"

	if s.limiter != nil && rlKey != "" {
		ok, _, _, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return 0, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return 0, fmt.Errorf("%s:%w", op, ErrRateLimited)
		}
	}

	var ticketID int64

	err := s.ledger.UpdateEvent(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
		ev, err := s.event(ctx, tx)
		if err != nil {
			return err
		}

		t, pay, err := domain.PurchaseTicket(ev, buyer, payment, s.clk.Now())
		if err != nil {
			return err
		}

		if err := tx.SetSold(ctx, ev.Sold); err != nil {
			return err
		}
		if err := tx.InsertTicket(ctx, t); err != nil {
			return err
		}

		ticketID = t.ID

		return s.pay(ctx, tx, pay)
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)

	return ticketID, nil
}

// Approve records spender as the outstanding transfer authorization for the
// caller's ticket. Listing a ticket requires a prior approval.
func (s *Service) Approve(
	ctx context.Context,
	eventID, ticketID int64,
	caller, spender domain.Address,
) error {
	const op = "service.market.Approve"

	err := s.ledger.UpdateEvent(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
		if _, err := s.event(ctx, tx); err != nil {
			return err
		}

		t, err := s.ticket(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		if err := domain.ApproveSpender(t, caller, spender); err != nil {
			return err
		}

		return tx.SaveTicket(ctx, *t)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ListTicket puts the caller's ticket on the resale market. An expiry beyond
// the event date is stored clamped to the event date.
//
// Returns:
//   - domain.Listing: the stored listing, including the clamped expiry.
func (s *Service) ListTicket(
	ctx context.Context,
	eventID, ticketID int64,
	caller domain.Address,
	price int64,
	expiresAt time.Time,
) (domain.Listing, error) {
	const op = "service.market.ListTicket"

	var listing domain.Listing

	err := s.ledger.UpdateEvent(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
		ev, err := s.event(ctx, tx)
		if err != nil {
			return err
		}

		t, err := s.ticket(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		l, err := domain.ListForResale(ev, t, caller, price, expiresAt, s.clk.Now())
		if err != nil {
			return err
		}

		listing = l

		return tx.SaveListing(ctx, l)
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)

	return listing, nil
}

// CancelListing removes the caller's listing. No ownership or funds move.
// Stale listings can be canceled too; they are otherwise left stored, inert.
func (s *Service) CancelListing(
	ctx context.Context,
	eventID, ticketID int64,
	caller domain.Address,
) error {
	const op = "service.market.CancelListing"

	err := s.ledger.UpdateEvent(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
		if _, err := s.event(ctx, tx); err != nil {
			return err
		}

		l, err := s.listing(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		if err := domain.CancelResale(l, caller); err != nil {
			return err
		}

		return tx.DeleteListing(ctx, ticketID)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)

	return nil
}

// BuyListedTicket buys an actively listed ticket at exactly the listing
// price. Ownership flips to the buyer, the listing and the approval are
// cleared, and the proceeds go to the previous owner, all as one unit.
func (s *Service) BuyListedTicket(
	ctx context.Context,
	eventID, ticketID int64,
	buyer domain.Address,
	payment int64,
) error {
	const op = "service.market.BuyListedTicket"

	err := s.ledger.UpdateEvent(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
		ev, err := s.event(ctx, tx)
		if err != nil {
			return err
		}

		t, err := s.ticket(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		l, err := s.listing(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		pay, err := domain.BuyListed(ev, t, l, buyer, payment, s.clk.Now())
		if err != nil {
			return err
		}

		if err := tx.SaveTicket(ctx, *t); err != nil {
			return err
		}
		if err := tx.DeleteListing(ctx, ticketID); err != nil {
			return err
		}

		return s.pay(ctx, tx, pay)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)

	return nil
}

// TransferTicket moves the caller's ticket to a non-zero recipient, clearing
// any listing and authorization tied to the old owner.
func (s *Service) TransferTicket(
	ctx context.Context,
	eventID, ticketID int64,
	caller, to domain.Address,
) error {
	const op = "service.market.TransferTicket"

	err := s.ledger.UpdateEvent(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
		ev, err := s.event(ctx, tx)
		if err != nil {
			return err
		}

		t, err := s.ticket(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		if err := domain.Transfer(ev, t, caller, to, s.clk.Now()); err != nil {
			return err
		}

		if err := tx.SaveTicket(ctx, *t); err != nil {
			return err
		}

		return tx.DeleteListing(ctx, ticketID)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.afterCommit(ctx, eventID)

	return nil
}

func (s *Service) event(ctx context.Context, tx repository.EventTx) (*domain.Event, error) {
	ev, err := tx.Event(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}

		return nil, err
	}

	return ev, nil
}

// ticket returns nil for an unissued ticket ID so the domain transitions see
// it as owned by nobody.
func (s *Service) ticket(ctx context.Context, tx repository.EventTx, ticketID int64) (*domain.Ticket, error) {
	t, err := tx.Ticket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return t, nil
}

func (s *Service) listing(ctx context.Context, tx repository.EventTx, ticketID int64) (*domain.Listing, error) {
	l, err := tx.Listing(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return l, nil
}

func (s *Service) pay(ctx context.Context, tx repository.EventTx, p domain.Payment) error {
	if err := tx.Pay(ctx, p); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return domain.ErrInsufficientFunds
		}

		return err
	}

	return nil
}

func (s *Service) afterCommit(ctx context.Context, eventID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}
