package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/tixledger/tixledger/internal/domain"
	redisrepo "github.com/tixledger/tixledger/internal/repository/redis"
	"github.com/tixledger/tixledger/internal/service"
	"github.com/tixledger/tixledger/internal/service/market"
	"github.com/tixledger/tixledger/internal/service/query"
	"github.com/tixledger/tixledger/internal/service/registry"
	"github.com/tixledger/tixledger/internal/service/wallet"
)

type RouterConfig struct {
	RequireSignature bool
}

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	cfg RouterConfig,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		LoggingMiddleware(logger),
		RequestIDMiddleware(),
		CORS(),
		CallerMiddleware(cfg.RequireSignature),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// registry
	r.POST("/events", handleCreateEvent(svcs))
	r.GET("/events", handleAllEvents(svcs))
	r.GET("/events/mine", handleMyEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))

	// primary sale + ticket views
	r.POST("/events/:id/tickets", handleBuyTicket(svcs, idem))
	r.GET("/events/:id/tickets/mine", handleMyTickets(svcs))
	r.GET("/events/:id/tickets/sold", handleSoldTickets(svcs))
	r.GET("/events/:id/tickets/:tid/owner", handleOwnerOf(svcs))
	r.POST("/events/:id/tickets/:tid/approve", handleApprove(svcs))
	r.POST("/events/:id/tickets/:tid/transfer", handleTransfer(svcs))

	// resale marketplace
	r.GET("/events/:id/listings", handleActiveListings(svcs))
	r.GET("/events/:id/listings/:tid", handleGetListing(svcs))
	r.POST("/events/:id/listings/:tid", handleListTicket(svcs))
	r.DELETE("/events/:id/listings/:tid", handleCancelListing(svcs))
	r.POST("/events/:id/listings/:tid/buy", handleBuyListed(svcs))

	// accounts
	r.GET("/accounts/:address/balance", handleBalance(svcs))
	r.POST("/accounts/:address/deposit", handleDeposit(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Create event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  400 {object} ErrorResponse
// @Router   /events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, ok := requireCaller(c)
		if !ok {
			return
		}
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Registry.CreateEvent(
			c.Request.Context(),
			org,
			req.Name,
			req.Date,
			req.TicketPrice,
			req.MaxSupply,
			req.MetadataURI,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  List all events (creation order)
// @Success  200 {array} EventResponse
// @Router   /events [get]
func handleAllEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := svcs.Registry.AllEvents(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toEventResponses(events), "public, max-age=15", true)
	}
}

// @Summary  List caller's organized events
// @Success  200 {array} EventResponse
// @Router   /events/mine [get]
func handleMyEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, ok := requireCaller(c)
		if !ok {
			return
		}
		events, err := svcs.Registry.MyEvents(c.Request.Context(), org)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponses(events))
	}
}

// @Summary  Get event summary
// @Param    id  path  int  true  "Event ID"
// @Success  200 {object} EventResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ev, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toEventResponse(*ev), "public, max-age=15", true)
	}
}

// @Summary  Buy ticket (idempotent)
// @Param    id  path  int  true  "Event ID"
// @Param    req body  BuyTicketRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BuyTicketResponse
// @Failure  409 {object} ErrorResponse "sold out / wrong payment / insufficient funds"
// @Failure  410 {object} ErrorResponse "event has passed"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/tickets [post]
func handleBuyTicket(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		buyer, ok := requireCaller(c)
		if !ok {
			return
		}
		var req BuyTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBuy(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		ticketID, err := svcs.Market.BuyTicket(
			c.Request.Context(),
			eventID,
			buyer,
			req.Payment,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := BuyTicketResponse{TicketID: ticketID}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  List caller's tickets for an event
// @Param    id  path  int  true  "Event ID"
// @Success  200 {object} TicketIDsResponse
// @Router   /events/{id}/tickets/mine [get]
func handleMyTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		ids, err := svcs.Query.MyTickets(c.Request.Context(), eventID, addr)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TicketIDsResponse{TicketIDs: ids})
	}
}

// @Summary  List all issued ticket IDs (organizer only)
// @Param    id  path  int  true  "Event ID"
// @Success  200 {object} TicketIDsResponse
// @Failure  403 {object} ErrorResponse
// @Router   /events/{id}/tickets/sold [get]
func handleSoldTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		ids, err := svcs.Query.SoldTickets(c.Request.Context(), eventID, addr)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TicketIDsResponse{TicketIDs: ids})
	}
}

// @Summary  Get ticket owner
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Success  200 {object} OwnerResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/tickets/{tid}/owner [get]
func handleOwnerOf(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		owner, err := svcs.Query.OwnerOf(c.Request.Context(), eventID, ticketID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, OwnerResponse{TicketID: ticketID, Owner: addrHex(owner)})
	}
}

// @Summary  Approve a spender for a ticket
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Param    req  body  ApproveRequest true "payload"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Router   /events/{id}/tickets/{tid}/approve [post]
func handleApprove(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		var req ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		spender, ok := parseAddr(req.Spender)
		if !ok {
			badRequest(c, "invalid spender address")
			return
		}
		if err := svcs.Market.Approve(c.Request.Context(), eventID, ticketID, addr, spender); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Transfer a ticket
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Param    req  body  TransferRequest true "payload"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  410 {object} ErrorResponse
// @Router   /events/{id}/tickets/{tid}/transfer [post]
func handleTransfer(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		to, ok := parseAddr(req.To)
		if !ok {
			badRequest(c, "invalid recipient address")
			return
		}
		if err := svcs.Market.TransferTicket(c.Request.Context(), eventID, ticketID, addr, to); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List active listings for an event
// @Param    id  path  int  true  "Event ID"
// @Success  200 {array} ListingResponse
// @Router   /events/{id}/listings [get]
func handleActiveListings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		listings, err := svcs.Query.ActiveListings(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]ListingResponse, 0, len(listings))
		for _, l := range listings {
			out = append(out, toListingResponse(l, true))
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=5", true)
	}
}

// @Summary  Get one listing
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Success  200 {object} ListingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/listings/{tid} [get]
func handleGetListing(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		l, active, err := svcs.Query.GetListing(c.Request.Context(), eventID, ticketID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toListingResponse(*l, active))
	}
}

// @Summary  List a ticket for resale
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Param    req  body  ListTicketRequest true "payload"
// @Success  201 {object} ListingResponse
// @Failure  403 {object} ErrorResponse "not owner / not approved"
// @Failure  410 {object} ErrorResponse "event has passed"
// @Router   /events/{id}/listings/{tid} [post]
func handleListTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		var req ListTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		l, err := svcs.Market.ListTicket(
			c.Request.Context(),
			eventID,
			ticketID,
			addr,
			req.Price,
			time.Unix(req.ExpiresAt, 0).UTC(),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toListingResponse(l, true))
	}
}

// @Summary  Cancel a listing
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Success  204
// @Failure  403 {object} ErrorResponse "not the seller"
// @Failure  404 {object} ErrorResponse "no listing"
// @Router   /events/{id}/listings/{tid} [delete]
func handleCancelListing(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		if err := svcs.Market.CancelListing(c.Request.Context(), eventID, ticketID, addr); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Buy a listed ticket
// @Param    id   path  int  true  "Event ID"
// @Param    tid  path  int  true  "Ticket ID"
// @Param    req  body  BuyListedRequest true "payload"
// @Success  204
// @Failure  404 {object} ErrorResponse "no active listing"
// @Failure  409 {object} ErrorResponse "wrong payment / self purchase / insufficient funds"
// @Failure  410 {object} ErrorResponse "listing or event expired"
// @Router   /events/{id}/listings/{tid}/buy [post]
func handleBuyListed(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticketID, ok := parseInt64Param(c, "tid")
		if !ok {
			return
		}
		addr, ok := requireCaller(c)
		if !ok {
			return
		}
		var req BuyListedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Market.BuyListedTicket(c.Request.Context(), eventID, ticketID, addr, req.Payment); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Get account balance
// @Param    address  path  string  true  "Account address"
// @Success  200 {object} BalanceResponse
// @Router   /accounts/{address}/balance [get]
func handleBalance(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, ok := parseAddr(c.Param("address"))
		if !ok {
			badRequest(c, "invalid address")
			return
		}
		balance, err := svcs.Wallet.Balance(c.Request.Context(), addr)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BalanceResponse{Address: addrHex(addr), Balance: balance})
	}
}

// @Summary  Deposit funds into an account
// @Param    address  path  string  true  "Account address"
// @Param    req      body  DepositRequest true "payload"
// @Success  200 {object} BalanceResponse
// @Router   /accounts/{address}/deposit [post]
func handleDeposit(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, ok := parseAddr(c.Param("address"))
		if !ok {
			badRequest(c, "invalid address")
			return
		}
		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Wallet.Deposit(c.Request.Context(), addr, req.Amount); err != nil {
			respondErr(c, err)
			return
		}
		balance, err := svcs.Wallet.Balance(c.Request.Context(), addr)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, BalanceResponse{Address: addrHex(addr), Balance: balance})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// construction and input problems
	case errors.Is(err, domain.ErrInvalidParameters):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrInvalidParameters.Error()})
	case errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: wallet.ErrInvalidAmount.Error()})
	case errors.Is(err, registry.ErrUnknownCaller):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: registry.ErrUnknownCaller.Error()})

	// authorization
	case errors.Is(err, domain.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.ErrNotOwner.Error()})
	case errors.Is(err, domain.ErrNotApproved):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.ErrNotApproved.Error()})
	case errors.Is(err, domain.ErrNotSeller):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.ErrNotSeller.Error()})
	case errors.Is(err, domain.ErrNotOrganizer):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.ErrNotOrganizer.Error()})

	// missing state
	case errors.Is(err, market.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: market.ErrEventNotFound.Error()})
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: query.ErrEventNotFound.Error()})
	case errors.Is(err, query.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: query.ErrTicketNotFound.Error()})
	case errors.Is(err, query.ErrListingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: query.ErrListingNotFound.Error()})
	case errors.Is(err, domain.ErrNoActiveListing):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: domain.ErrNoActiveListing.Error()})

	// state machine rejections
	case errors.Is(err, domain.ErrSoldOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrSoldOut.Error()})
	case errors.Is(err, domain.ErrWrongPayment):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrWrongPayment.Error()})
	case errors.Is(err, domain.ErrSelfPurchase):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrSelfPurchase.Error()})
	case errors.Is(err, domain.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrInsufficientFunds.Error()})

	// time gates
	case errors.Is(err, domain.ErrEventExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: domain.ErrEventExpired.Error()})
	case errors.Is(err, domain.ErrListingExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: domain.ErrListingExpired.Error()})

	case errors.Is(err, market.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: market.ErrRateLimited.Error()})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
