package service

import (
	"github.com/tixledger/tixledger/internal/clock"
	postgres "github.com/tixledger/tixledger/internal/repository/postgres"
	redis "github.com/tixledger/tixledger/internal/repository/redis"
	"github.com/tixledger/tixledger/internal/service/market"
	"github.com/tixledger/tixledger/internal/service/query"
	"github.com/tixledger/tixledger/internal/service/registry"
	"github.com/tixledger/tixledger/internal/service/wallet"
)

type Services struct {
	Registry *registry.Service
	Market   *market.Service
	Query    *query.Service
	Wallet   *wallet.Service
}

type Config struct {
	Query query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.EventsPubSub,
	limiter *redis.SlidingWindowLimiter,
	clk clock.Clock,
	cfg Config,
) *Services {
	return &Services{
		Registry: registry.New(store.Registry(), cache, pubsub, clk),
		Market:   market.New(store.Ledger(), cache, pubsub, limiter, clk),
		Query:    query.New(store.Query(), cache, clk, cfg.Query),
		Wallet:   wallet.New(store.Accounts()),
	}
}
