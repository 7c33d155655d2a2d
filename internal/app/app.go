package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tradebot/internal/bot"
	"tradebot/internal/config"
	"tradebot/internal/executor"
	"tradebot/internal/ledger"
	"tradebot/internal/ledger/sqlite"
	"tradebot/internal/logger"
	"tradebot/internal/market"
	"tradebot/internal/strategy"
	apihttp "tradebot/internal/transport/http"
)

// App owns application-level orchestration: build dependencies from config,
// run the HTTP server, tear everything down on shutdown.
type App struct {
	cfg    *config.Config
	store  ledger.Store
	server *apihttp.Server
}

// New builds the application object without starting it.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := sqlite.NewSqliteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger store: %w", err)
	}

	prices := market.NewBinanceSource(market.BinanceConfig{
		BaseURL: cfg.Market.BaseURL,
		Timeout: time.Duration(cfg.Market.TimeoutSec) * time.Second,
	})

	trading, err := strategy.NewMACrossover(cfg.Bot.TradingShort, cfg.Bot.TradingLong)
	if err != nil {
		store.Close()
		return nil, err
	}
	training, err := strategy.NewMACrossover(cfg.Bot.TrainingShort, cfg.Bot.TrainingLong)
	if err != nil {
		store.Close()
		return nil, err
	}
	startingCash, err := decimal.NewFromString(cfg.Bot.StartingCash)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("parsing bot.starting_cash: %w", err)
	}

	exec := executor.New(store)
	tradeBot := bot.New(prices, exec, store, bot.Config{
		Trading:        trading,
		Training:       training,
		Cooldown:       time.Duration(cfg.Bot.CooldownMs) * time.Millisecond,
		CandleInterval: cfg.Bot.CandleInterval,
		CandleLimit:    cfg.Bot.CandleLimit,
	})

	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:         cfg.Server.Addr,
		Bot:          tradeBot,
		Executor:     exec,
		Store:        store,
		Prices:       prices,
		StartingCash: startingCash,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{cfg: cfg, store: store, server: server}, nil
}

// Run serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.Start(ctx)
	})
	err := group.Wait()
	if closeErr := a.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
