package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tixledger/tixledger/internal/clock"
	"github.com/tixledger/tixledger/internal/domain"
	"github.com/tixledger/tixledger/internal/repository"
)

func addr(b byte) domain.Address {
	var a domain.Address
	a[19] = b
	return a
}

var (
	organizer = addr(0x01)
	alice     = addr(0x0a)
	bob       = addr(0x0b)
	carol     = addr(0x0c)
)

// fakeState is one event's worth of ledger state.
type fakeState struct {
	event    domain.Event
	tickets  map[int64]domain.Ticket
	listings map[int64]domain.Listing
	balances map[domain.Address]int64
	payments []domain.Payment
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		event:    s.event,
		tickets:  make(map[int64]domain.Ticket, len(s.tickets)),
		listings: make(map[int64]domain.Listing, len(s.listings)),
		balances: make(map[domain.Address]int64, len(s.balances)),
		payments: append([]domain.Payment(nil), s.payments...),
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// fakeLedger commits the unit's mutations only when fn returns nil, the same
// all-or-nothing contract the real transactional ledger gives.
type fakeLedger struct {
	state *fakeState
	ops   []string // op names of the last unit, in call order
}

func newFakeLedger(ev domain.Event) *fakeLedger {
	return &fakeLedger{
		state: &fakeState{
			event:    ev,
			tickets:  make(map[int64]domain.Ticket),
			listings: make(map[int64]domain.Listing),
			balances: make(map[domain.Address]int64),
		},
	}
}

func (f *fakeLedger) UpdateEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, tx repository.EventTx) error) error {
	staged := f.state.clone()
	tx := &fakeTx{ledger: f, state: staged, eventID: eventID}
	f.ops = nil
	if err := fn(ctx, tx); err != nil {
		return err
	}
	f.state = staged
	return nil
}

type fakeTx struct {
	ledger  *fakeLedger
	state   *fakeState
	eventID int64
}

func (t *fakeTx) record(op string) { t.ledger.ops = append(t.ledger.ops, op) }

func (t *fakeTx) Event(ctx context.Context) (*domain.Event, error) {
	t.record("Event")
	if t.eventID != t.state.event.ID {
		return nil, repository.ErrNotFound
	}
	ev := t.state.event
	return &ev, nil
}

func (t *fakeTx) Ticket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	t.record("Ticket")
	tk, ok := t.state.tickets[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tk, nil
}

func (t *fakeTx) Listing(ctx context.Context, ticketID int64) (*domain.Listing, error) {
	t.record("Listing")
	l, ok := t.state.listings[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (t *fakeTx) SetSold(ctx context.Context, sold int64) error {
	t.record("SetSold")
	t.state.event.Sold = sold
	return nil
}

func (t *fakeTx) InsertTicket(ctx context.Context, tk domain.Ticket) error {
	t.record("InsertTicket")
	if _, ok := t.state.tickets[tk.ID]; ok {
		return repository.ErrConflict
	}
	t.state.tickets[tk.ID] = tk
	return nil
}

func (t *fakeTx) SaveTicket(ctx context.Context, tk domain.Ticket) error {
	t.record("SaveTicket")
	t.state.tickets[tk.ID] = tk
	return nil
}

func (t *fakeTx) SaveListing(ctx context.Context, l domain.Listing) error {
	t.record("SaveListing")
	t.state.listings[l.TicketID] = l
	return nil
}

func (t *fakeTx) DeleteListing(ctx context.Context, ticketID int64) error {
	t.record("DeleteListing")
	delete(t.state.listings, ticketID)
	return nil
}

func (t *fakeTx) Pay(ctx context.Context, p domain.Payment) error {
	t.record("Pay")
	if p.Amount == 0 {
		return nil
	}
	if t.state.balances[p.From] < p.Amount {
		return repository.ErrInsufficientFunds
	}
	t.state.balances[p.From] -= p.Amount
	t.state.balances[p.To] += p.Amount
	t.state.payments = append(t.state.payments, p)
	return nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testEvent() domain.Event {
	return domain.Event{
		ID:          1,
		Organizer:   organizer,
		Name:        "Concert",
		Date:        testNow.Add(48 * time.Hour),
		TicketPrice: 100,
		MaxSupply:   3,
		CreatedAt:   testNow,
	}
}

func newTestService(ledger repository.Ledger) *Service {
	return New(ledger, nil, nil, nil, clock.NewFixed(testNow))
}

func TestBuyTicket(t *testing.T) {
	ctx := context.Background()

	t.Run("issues ticket and pays organizer", func(t *testing.T) {
		ledger := newFakeLedger(testEvent())
		ledger.state.balances[alice] = 250
		svc := newTestService(ledger)

		ticketID, err := svc.BuyTicket(ctx, 1, alice, 100, "")
		if err != nil {
			t.Fatalf("buy: %v", err)
		}
		if ticketID != 1 {
			t.Fatalf("ticketID = %d, want 1", ticketID)
		}
		if got := ledger.state.event.Sold; got != 1 {
			t.Fatalf("sold = %d, want 1", got)
		}
		if got := ledger.state.tickets[1].Owner; got != alice {
			t.Fatalf("owner = %v, want %v", got, alice)
		}
		if got := ledger.state.balances[alice]; got != 150 {
			t.Fatalf("buyer balance = %d, want 150", got)
		}
		if got := ledger.state.balances[organizer]; got != 100 {
			t.Fatalf("organizer balance = %d, want 100", got)
		}
	})

	t.Run("payment is the last mutation of the unit", func(t *testing.T) {
		ledger := newFakeLedger(testEvent())
		ledger.state.balances[alice] = 100
		svc := newTestService(ledger)

		if _, err := svc.BuyTicket(ctx, 1, alice, 100, ""); err != nil {
			t.Fatalf("buy: %v", err)
		}
		if len(ledger.ops) == 0 || ledger.ops[len(ledger.ops)-1] != "Pay" {
			t.Fatalf("ops = %v, want Pay last", ledger.ops)
		}
	})

	t.Run("insufficient funds rolls everything back", func(t *testing.T) {
		ledger := newFakeLedger(testEvent())
		ledger.state.balances[alice] = 50
		svc := newTestService(ledger)

		_, err := svc.BuyTicket(ctx, 1, alice, 100, "")
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("got %v, want ErrInsufficientFunds", err)
		}
		if got := ledger.state.event.Sold; got != 0 {
			t.Fatalf("sold = %d, want 0 after rollback", got)
		}
		if len(ledger.state.tickets) != 0 {
			t.Fatalf("ticket persisted after rollback")
		}
	})

	t.Run("free event needs no funds", func(t *testing.T) {
		ev := testEvent()
		ev.TicketPrice = 0
		ledger := newFakeLedger(ev)
		svc := newTestService(ledger)

		ticketID, err := svc.BuyTicket(ctx, 1, alice, 0, "")
		if err != nil {
			t.Fatalf("buy free ticket: %v", err)
		}
		if ticketID != 1 {
			t.Fatalf("ticketID = %d, want 1", ticketID)
		}
		if got := ledger.state.balances[organizer]; got != 0 {
			t.Fatalf("organizer balance = %d, want 0", got)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		ledger := newFakeLedger(testEvent())
		svc := newTestService(ledger)

		_, err := svc.BuyTicket(ctx, 42, alice, 100, "")
		if !errors.Is(err, ErrEventNotFound) {
			t.Fatalf("got %v, want ErrEventNotFound", err)
		}
	})

	t.Run("sequential IDs across buyers", func(t *testing.T) {
		ledger := newFakeLedger(testEvent())
		ledger.state.balances[alice] = 200
		ledger.state.balances[bob] = 200
		svc := newTestService(ledger)

		id1, err := svc.BuyTicket(ctx, 1, alice, 100, "")
		if err != nil {
			t.Fatalf("first buy: %v", err)
		}
		id2, err := svc.BuyTicket(ctx, 1, bob, 100, "")
		if err != nil {
			t.Fatalf("second buy: %v", err)
		}
		if id1 != 1 || id2 != 2 {
			t.Fatalf("IDs = %d, %d, want 1, 2", id1, id2)
		}
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	ledger := newFakeLedger(testEvent())
	ledger.state.event.Sold = 1
	ledger.state.tickets[1] = domain.Ticket{EventID: 1, ID: 1, Owner: alice, IssuedAt: testNow}
	svc := newTestService(ledger)

	if err := svc.Approve(ctx, 1, 1, bob, carol); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("non-owner: got %v, want ErrNotOwner", err)
	}
	if err := svc.Approve(ctx, 1, 99, alice, bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("unissued ticket: got %v, want ErrNotOwner", err)
	}

	if err := svc.Approve(ctx, 1, 1, alice, bob); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := ledger.state.tickets[1].Approved; got != bob {
		t.Fatalf("approved = %v, want %v", got, bob)
	}
}

func TestListTicket(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fakeLedger, *Service) {
		ledger := newFakeLedger(testEvent())
		ledger.state.event.Sold = 1
		ledger.state.tickets[1] = domain.Ticket{EventID: 1, ID: 1, Owner: alice, Approved: bob, IssuedAt: testNow}
		return ledger, newTestService(ledger)
	}

	t.Run("stores listing", func(t *testing.T) {
		ledger, svc := setup()
		expires := testNow.Add(24 * time.Hour)

		l, err := svc.ListTicket(ctx, 1, 1, alice, 150, expires)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !l.ExpiresAt.Equal(expires) {
			t.Fatalf("expiresAt = %v, want %v", l.ExpiresAt, expires)
		}
		if _, ok := ledger.state.listings[1]; !ok {
			t.Fatalf("listing not stored")
		}
	})

	t.Run("clamps expiry to event date", func(t *testing.T) {
		ledger, svc := setup()
		eventDate := ledger.state.event.Date

		l, err := svc.ListTicket(ctx, 1, 1, alice, 150, eventDate.Add(time.Hour))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !l.ExpiresAt.Equal(eventDate) {
			t.Fatalf("expiresAt = %v, want clamped to %v", l.ExpiresAt, eventDate)
		}
	})

	t.Run("requires approval first", func(t *testing.T) {
		ledger, svc := setup()
		tk := ledger.state.tickets[1]
		tk.Approved = domain.Address{}
		ledger.state.tickets[1] = tk

		_, err := svc.ListTicket(ctx, 1, 1, alice, 150, testNow.Add(time.Hour))
		if !errors.Is(err, domain.ErrNotApproved) {
			t.Fatalf("got %v, want ErrNotApproved", err)
		}
	})
}

func TestCancelListing(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fakeLedger, *Service) {
		ledger := newFakeLedger(testEvent())
		ledger.state.event.Sold = 1
		ledger.state.tickets[1] = domain.Ticket{EventID: 1, ID: 1, Owner: alice, Approved: bob, IssuedAt: testNow}
		ledger.state.listings[1] = domain.Listing{
			EventID: 1, TicketID: 1, Seller: alice, Price: 150,
			ExpiresAt: testNow.Add(24 * time.Hour), CreatedAt: testNow,
		}
		return ledger, newTestService(ledger)
	}

	t.Run("seller cancels", func(t *testing.T) {
		ledger, svc := setup()
		if err := svc.CancelListing(ctx, 1, 1, alice); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, ok := ledger.state.listings[1]; ok {
			t.Fatalf("listing still stored")
		}
	})

	t.Run("only the seller may cancel", func(t *testing.T) {
		ledger, svc := setup()
		if err := svc.CancelListing(ctx, 1, 1, bob); !errors.Is(err, domain.ErrNotSeller) {
			t.Fatalf("got %v, want ErrNotSeller", err)
		}
		if _, ok := ledger.state.listings[1]; !ok {
			t.Fatalf("listing removed by non-seller")
		}
	})

	t.Run("missing listing", func(t *testing.T) {
		_, svc := setup()
		if err := svc.CancelListing(ctx, 1, 2, alice); !errors.Is(err, domain.ErrNoActiveListing) {
			t.Fatalf("got %v, want ErrNoActiveListing", err)
		}
	})
}

func TestBuyListedTicket(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fakeLedger, *Service) {
		ledger := newFakeLedger(testEvent())
		ledger.state.event.Sold = 1
		ledger.state.tickets[1] = domain.Ticket{EventID: 1, ID: 1, Owner: alice, Approved: bob, IssuedAt: testNow}
		ledger.state.listings[1] = domain.Listing{
			EventID: 1, TicketID: 1, Seller: alice, Price: 150,
			ExpiresAt: testNow.Add(24 * time.Hour), CreatedAt: testNow,
		}
		ledger.state.balances[bob] = 200
		return ledger, newTestService(ledger)
	}

	t.Run("flips ownership and pays seller", func(t *testing.T) {
		ledger, svc := setup()

		if err := svc.BuyListedTicket(ctx, 1, 1, bob, 150); err != nil {
			t.Fatalf("buy listed: %v", err)
		}
		tk := ledger.state.tickets[1]
		if tk.Owner != bob {
			t.Fatalf("owner = %v, want %v", tk.Owner, bob)
		}
		if tk.Approved != (domain.Address{}) {
			t.Fatalf("approval not cleared")
		}
		if _, ok := ledger.state.listings[1]; ok {
			t.Fatalf("listing not removed")
		}
		if got := ledger.state.balances[alice]; got != 150 {
			t.Fatalf("seller balance = %d, want 150", got)
		}
		if got := ledger.state.balances[bob]; got != 50 {
			t.Fatalf("buyer balance = %d, want 50", got)
		}
		if last := ledger.ops[len(ledger.ops)-1]; last != "Pay" {
			t.Fatalf("ops = %v, want Pay last", ledger.ops)
		}
	})

	t.Run("insufficient funds keeps owner and listing", func(t *testing.T) {
		ledger, svc := setup()
		ledger.state.balances[bob] = 10

		err := svc.BuyListedTicket(ctx, 1, 1, bob, 150)
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("got %v, want ErrInsufficientFunds", err)
		}
		if got := ledger.state.tickets[1].Owner; got != alice {
			t.Fatalf("owner = %v, want unchanged %v", got, alice)
		}
		if _, ok := ledger.state.listings[1]; !ok {
			t.Fatalf("listing removed despite rollback")
		}
	})

	t.Run("wrong payment", func(t *testing.T) {
		ledger, svc := setup()

		err := svc.BuyListedTicket(ctx, 1, 1, bob, 100)
		if !errors.Is(err, domain.ErrWrongPayment) {
			t.Fatalf("got %v, want ErrWrongPayment", err)
		}
		if got := ledger.state.tickets[1].Owner; got != alice {
			t.Fatalf("owner changed on rejected purchase")
		}
	})

	t.Run("no listing", func(t *testing.T) {
		ledger, svc := setup()
		delete(ledger.state.listings, 1)

		err := svc.BuyListedTicket(ctx, 1, 1, bob, 150)
		if !errors.Is(err, domain.ErrNoActiveListing) {
			t.Fatalf("got %v, want ErrNoActiveListing", err)
		}
	})

	t.Run("self purchase", func(t *testing.T) {
		_, svc := setup()

		err := svc.BuyListedTicket(ctx, 1, 1, alice, 150)
		if !errors.Is(err, domain.ErrSelfPurchase) {
			t.Fatalf("got %v, want ErrSelfPurchase", err)
		}
	})
}

func TestTransferTicket(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fakeLedger, *Service) {
		ledger := newFakeLedger(testEvent())
		ledger.state.event.Sold = 1
		ledger.state.tickets[1] = domain.Ticket{EventID: 1, ID: 1, Owner: alice, Approved: bob, IssuedAt: testNow}
		ledger.state.listings[1] = domain.Listing{
			EventID: 1, TicketID: 1, Seller: alice, Price: 150,
			ExpiresAt: testNow.Add(24 * time.Hour), CreatedAt: testNow,
		}
		return ledger, newTestService(ledger)
	}

	t.Run("moves ticket and clears listing", func(t *testing.T) {
		ledger, svc := setup()

		if err := svc.TransferTicket(ctx, 1, 1, alice, carol); err != nil {
			t.Fatalf("transfer: %v", err)
		}
		tk := ledger.state.tickets[1]
		if tk.Owner != carol {
			t.Fatalf("owner = %v, want %v", tk.Owner, carol)
		}
		if tk.Approved != (domain.Address{}) {
			t.Fatalf("approval not cleared")
		}
		if _, ok := ledger.state.listings[1]; ok {
			t.Fatalf("stale listing survived the transfer")
		}
	})

	t.Run("zero recipient", func(t *testing.T) {
		_, svc := setup()
		err := svc.TransferTicket(ctx, 1, 1, alice, domain.Address{})
		if !errors.Is(err, domain.ErrInvalidParameters) {
			t.Fatalf("got %v, want ErrInvalidParameters", err)
		}
	})

	t.Run("not owner", func(t *testing.T) {
		ledger, svc := setup()
		err := svc.TransferTicket(ctx, 1, 1, bob, carol)
		if !errors.Is(err, domain.ErrNotOwner) {
			t.Fatalf("got %v, want ErrNotOwner", err)
		}
		if _, ok := ledger.state.listings[1]; !ok {
			t.Fatalf("listing removed on rejected transfer")
		}
	})
}
