package domain

import "time"

// The ledger transitions below are pure: each one validates its preconditions
// against the passed-in state, mutates that state in place on success, and
// returns any payment owed. Callers stage the mutated state and apply the
// payment last, inside a single atomic unit; on error the state must be
// discarded unchanged.
//
// A nil Ticket stands for an unissued ticket ID: its owner is nobody, so
// ownership-gated transitions fail with ErrNotOwner the same way a zero-value
// owner mapping would.

// ValidateEventParams checks the construction inputs of a new event.
// A zero ticket price is valid (free event); a future date is not required
// here, the date only gates later operations.
func ValidateEventParams(name string, ticketPrice, maxSupply int64) error {
	if name == "" || maxSupply < 1 || ticketPrice < 0 {
		return ErrInvalidParameters
	}
	return nil
}

// PurchaseTicket issues the next ticket of ev to buyer for an exact payment of
// ev.TicketPrice. On success ev.Sold is incremented and the new ticket plus
// the payment owed to the organizer are returned.
func PurchaseTicket(ev *Event, buyer Address, payment int64, now time.Time) (Ticket, Payment, error) {
	if !now.Before(ev.Date) {
		return Ticket{}, Payment{}, ErrEventExpired
	}
	if ev.Sold >= ev.MaxSupply {
		return Ticket{}, Payment{}, ErrSoldOut
	}
	if payment != ev.TicketPrice {
		return Ticket{}, Payment{}, ErrWrongPayment
	}

	ev.Sold++

	t := Ticket{
		EventID:  ev.ID,
		ID:       ev.Sold,
		Owner:    buyer,
		IssuedAt: now,
	}

	return t, Payment{From: buyer, To: ev.Organizer, Amount: ev.TicketPrice}, nil
}

// ApproveSpender records spender as the single outstanding transfer
// authorization for t. Any later transfer of the ticket consumes it.
func ApproveSpender(t *Ticket, caller, spender Address) error {
	if t == nil || t.Owner != caller {
		return ErrNotOwner
	}

	t.Approved = spender
	return nil
}

// ListForResale creates a resale listing for t. The caller must own the
// ticket and must have approved a spender beforehand. An expiry beyond the
// event date is clamped to the event date rather than rejected, so sellers
// need not compute the exact cap.
func ListForResale(ev *Event, t *Ticket, caller Address, price int64, expiresAt, now time.Time) (Listing, error) {
	if !now.Before(ev.Date) {
		return Listing{}, ErrEventExpired
	}
	if t == nil || t.Owner != caller {
		return Listing{}, ErrNotOwner
	}
	if t.Approved == (Address{}) {
		return Listing{}, ErrNotApproved
	}
	if price <= 0 {
		return Listing{}, ErrInvalidParameters
	}

	if expiresAt.After(ev.Date) {
		expiresAt = ev.Date
	}

	return Listing{
		EventID:   ev.ID,
		TicketID:  t.ID,
		Seller:    caller,
		Price:     price,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// CancelResale checks that caller may remove l. Stale listings can still be
// canceled; only the seller may do it. The caller deletes the listing on nil.
func CancelResale(l *Listing, caller Address) error {
	if l == nil {
		return ErrNoActiveListing
	}
	if l.Seller != caller {
		return ErrNotSeller
	}
	return nil
}

// BuyListed transfers t from the seller of l to buyer at exactly l.Price.
// The listing must still be active: present, seller still the owner, and not
// expired. On success the ticket's owner flips, the authorization is cleared,
// and the payment owed to the previous owner is returned; the caller must
// also delete the listing as part of the same unit.
func BuyListed(ev *Event, t *Ticket, l *Listing, buyer Address, payment int64, now time.Time) (Payment, error) {
	if !now.Before(ev.Date) {
		return Payment{}, ErrEventExpired
	}
	if t == nil || l == nil || l.Seller != t.Owner {
		return Payment{}, ErrNoActiveListing
	}
	if !now.Before(l.ExpiresAt) {
		return Payment{}, ErrListingExpired
	}
	if buyer == l.Seller {
		return Payment{}, ErrSelfPurchase
	}
	if payment != l.Price {
		return Payment{}, ErrWrongPayment
	}

	seller := l.Seller
	t.Owner = buyer
	t.Approved = Address{}

	return Payment{From: buyer, To: seller, Amount: l.Price}, nil
}

// Transfer moves t from caller to a non-zero recipient. A direct transfer
// invalidates any pending resale offer tied to the old owner, so the caller
// must also clear the ticket's listing; the approval is reset here.
func Transfer(ev *Event, t *Ticket, caller, to Address, now time.Time) error {
	if !now.Before(ev.Date) {
		return ErrEventExpired
	}
	if to == (Address{}) {
		return ErrInvalidParameters
	}
	if t == nil || t.Owner != caller {
		return ErrNotOwner
	}

	t.Owner = to
	t.Approved = Address{}
	return nil
}
