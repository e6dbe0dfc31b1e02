package httpgin

import (
	"github.com/tixledger/tixledger/internal/domain"
)

type CreateEventRequest struct {
	Name        string `json:"name" binding:"required"`
	Date        int64  `json:"date" binding:"required"` // unix seconds
	TicketPrice int64  `json:"ticket_price"`
	MaxSupply   int64  `json:"max_supply"`
	MetadataURI string `json:"metadata_uri"`
}

type BuyTicketRequest struct {
	Payment int64 `json:"payment"` // must equal the ticket price exactly; zero for free events
}

type ApproveRequest struct {
	Spender string `json:"spender" binding:"required"`
}

type ListTicketRequest struct {
	Price     int64 `json:"price" binding:"required,gt=0"`
	ExpiresAt int64 `json:"expires_at" binding:"required"` // unix seconds, clamped to the event date
}

type BuyListedRequest struct {
	Payment int64 `json:"payment"`
}

type TransferRequest struct {
	To string `json:"to" binding:"required"`
}

type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type BuyTicketResponse struct {
	TicketID int64 `json:"ticket_id"`
}

type EventResponse struct {
	ID          int64  `json:"id"`
	Organizer   string `json:"organizer"`
	Name        string `json:"name"`
	Date        int64  `json:"date"`
	TicketPrice int64  `json:"ticket_price"`
	MaxSupply   int64  `json:"max_supply"`
	Sold        int64  `json:"sold"`
	MetadataURI string `json:"metadata_uri"`
}

type ListingResponse struct {
	TicketID  int64  `json:"ticket_id"`
	Seller    string `json:"seller"`
	Price     int64  `json:"price"`
	ExpiresAt int64  `json:"expires_at"`
	Active    bool   `json:"active"`
}

type OwnerResponse struct {
	TicketID int64  `json:"ticket_id"`
	Owner    string `json:"owner"`
}

type TicketIDsResponse struct {
	TicketIDs []int64 `json:"ticket_ids"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

func toEventResponse(ev domain.Event) EventResponse {
	return EventResponse{
		ID:          ev.ID,
		Organizer:   addrHex(ev.Organizer),
		Name:        ev.Name,
		Date:        ev.Date.Unix(),
		TicketPrice: ev.TicketPrice,
		MaxSupply:   ev.MaxSupply,
		Sold:        ev.Sold,
		MetadataURI: ev.MetadataURI,
	}
}

func toEventResponses(events []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	return out
}

func toListingResponse(l domain.Listing, active bool) ListingResponse {
	return ListingResponse{
		TicketID:  l.TicketID,
		Seller:    addrHex(l.Seller),
		Price:     l.Price,
		ExpiresAt: l.ExpiresAt.Unix(),
		Active:    active,
	}
}
