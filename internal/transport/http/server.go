package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradebot/internal/bot"
	"tradebot/internal/executor"
	"tradebot/internal/ledger"
	"tradebot/internal/logger"
	"tradebot/internal/market"
)

// Server exposes the bot, executor and ledger over a small JSON API.
type Server struct {
	addr   string
	router *gin.Engine

	bot          *bot.Bot
	exec         *executor.Executor
	store        ledger.Store
	prices       market.Source
	startingCash decimal.Decimal
}

// ServerConfig describes the server dependencies.
type ServerConfig struct {
	Addr         string
	Bot          *bot.Bot
	Executor     *executor.Executor
	Store        ledger.Store
	Prices       market.Source
	StartingCash decimal.Decimal
}

// NewServer builds the API server and registers all routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Bot == nil || cfg.Executor == nil || cfg.Store == nil || cfg.Prices == nil {
		return nil, errors.New("api server requires bot, executor, store and prices")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:         cfg.Addr,
		router:       router,
		bot:          cfg.Bot,
		exec:         cfg.Executor,
		store:        cfg.Store,
		prices:       cfg.Prices,
		startingCash: cfg.StartingCash,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	api.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	api.POST("/buy", s.handleBuy)
	api.POST("/sell", s.handleSell)
	api.POST("/step", s.handleStep)
	api.POST("/train", s.handleTrain)
	api.POST("/train/step", s.handleTrainStep)
	api.POST("/train/step/candles", s.handleTrainStepCandles)

	api.POST("/account", s.handleAccountCreate)
	api.POST("/account/reset", s.handleAccountReset)
	api.GET("/account", s.handleAccount)
	api.GET("/portfolio", s.handlePortfolio)
	api.GET("/trades", s.handleTrades)

	api.GET("/market/candles", s.handleMarketCandles)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Router exposes the handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Infof("api server listening on %s", s.addr)
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
