package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a participant on the ledger. The zero value is never a
// valid participant; ownership-gated operations treat it as "nobody".
type Address = common.Address

// Event is one ticketed event. Sold only ever grows, and ticket IDs are
// issued as the strict sequence 1..Sold.
type Event struct {
	ID          int64
	Organizer   Address
	Name        string
	Date        time.Time
	TicketPrice int64 // smallest currency unit; zero means a free event
	MaxSupply   int64
	Sold        int64
	MetadataURI string // opaque off-ledger pointer, never interpreted
	CreatedAt   time.Time
}

// Ticket is a uniquely numbered ownership record scoped to one event.
// Approved holds the single outstanding transfer authorization; the zero
// address means no spender is authorized.
type Ticket struct {
	EventID  int64
	ID       int64
	Owner    Address
	Approved Address
	IssuedAt time.Time
}

// Listing is an open offer to sell an owned ticket at a fixed price until
// ExpiresAt. A stored listing may be stale (expired, or left behind by an
// ownership change); staleness is evaluated at request time, never swept.
type Listing struct {
	EventID   int64
	TicketID  int64
	Seller    Address
	Price     int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ActiveAt reports whether the listing can be bought at now by the current
// owner of its ticket.
func (l *Listing) ActiveAt(now time.Time, owner Address) bool {
	return l != nil && l.Seller == owner && now.Before(l.ExpiresAt)
}

// Payment is a balance movement owed as part of a ledger operation. It is
// applied after every other state mutation of the operation has been staged.
type Payment struct {
	From   Address
	To     Address
	Amount int64
}
