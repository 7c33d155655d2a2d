package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradebot/internal/executor"
	"tradebot/internal/ledger"
	"tradebot/internal/ledger/model"
	"tradebot/internal/logger"
	"tradebot/internal/market"
	"tradebot/internal/strategy"
)

// minLiveCandles is the floor below which a live step refuses to signal.
const minLiveCandles = 21

// ClosePoint is one historical price point supplied by a caller-driven
// backtest: the candle open time in Unix milliseconds plus its close.
type ClosePoint struct {
	Timestamp int64           `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
}

// StepResult reports one resumable backtest step so a caller can drive the
// replay incrementally.
type StepResult struct {
	Done           bool            `json:"done"`
	NextIndex      int             `json:"nextIndex"`
	TradesExecuted int             `json:"tradesExecuted"`
	Signal         strategy.Signal `json:"signal"`
}

// Config carries the orchestrator knobs; see config defaults for the
// canonical values.
type Config struct {
	Trading        strategy.MACrossover
	Training       strategy.MACrossover
	Cooldown       time.Duration
	CandleInterval string
	CandleLimit    int
}

// Bot drives the signal engine and trade executor against live or historical
// price series. It holds no per-call state; concurrent invocations are
// serialized by the ledger's account locks, not here.
type Bot struct {
	prices market.Source
	exec   *executor.Executor
	store  ledger.Store
	cfg    Config
}

func New(prices market.Source, exec *executor.Executor, store ledger.Store, cfg Config) *Bot {
	if cfg.CandleInterval == "" {
		cfg.CandleInterval = "1m"
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 200
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	return &Bot{prices: prices, exec: exec, store: store, cfg: cfg}
}

// RunTradingStep performs one live decision: fetch recent candles, overwrite
// the final close with the latest traded price, evaluate the trend signal and
// execute it if the cooldown and position-state gates allow. The signal is
// returned even when a gate suppressed execution, so callers can observe bot
// intent distinct from executed action.
func (b *Bot) RunTradingStep(ctx context.Context, accountID int64, symbol string) (strategy.Signal, error) {
	candles, err := b.prices.Candles(ctx, symbol, b.cfg.CandleInterval, b.cfg.CandleLimit, 0)
	if err != nil {
		return strategy.SignalHold, err
	}
	if len(candles) < minLiveCandles {
		return strategy.SignalHold, nil
	}

	closes := market.Closes(candles)

	// Overwrite the last close with the live price to cut candle-close lag.
	live, err := b.prices.LatestPrice(ctx, symbol)
	if err != nil {
		return strategy.SignalHold, err
	}
	closes[len(closes)-1] = live

	// epsilon 0 keeps the trend signal at its most active.
	signal := b.cfg.Trading.TrendSignal(closes, decimal.Zero)

	lastTrade, found, err := b.store.LastTradeTime(ctx, accountID, model.ModeTrading, symbol)
	if err != nil {
		return strategy.SignalHold, err
	}
	if found && time.Since(lastTrade) < b.cfg.Cooldown {
		return strategy.SignalHold, nil
	}

	hasPos, err := b.store.HasOpenPosition(ctx, accountID, symbol)
	if err != nil {
		return strategy.SignalHold, err
	}

	switch {
	case signal == strategy.SignalBuy && !hasPos:
		if _, err := b.exec.Buy(ctx, accountID, symbol, live, model.ModeTrading); err != nil {
			return signal, err
		}
	case signal == strategy.SignalSell && hasPos:
		if _, err := b.exec.Sell(ctx, accountID, symbol, live, model.ModeTrading); err != nil {
			return signal, err
		}
	}

	logger.Debugf("trading step account=%d symbol=%s signal=%s hasPos=%t",
		accountID, symbol, signal, hasPos)
	return signal, nil
}

// RunTraining replays a historical close series in one batch, executing every
// crossover signal in TRAINING mode. It returns the number of signals acted
// on; a guard-clause skip inside the executor still counts, matching the
// resumable step path.
func (b *Bot) RunTraining(ctx context.Context, accountID int64, symbol string, limit, offset int) (int, error) {
	closes, err := b.historicalCloses(ctx, symbol, limit, offset)
	if err != nil {
		return 0, err
	}

	minIndex := b.cfg.Training.MinDecideLen()
	trades := 0
	for i := minIndex; i < len(closes); i++ {
		signal := b.cfg.Training.Decide(closes[:i+1])
		price := closes[i]

		switch signal {
		case strategy.SignalBuy:
			if _, err := b.exec.Buy(ctx, accountID, symbol, price, model.ModeTraining); err != nil {
				return trades, err
			}
			trades++
		case strategy.SignalSell:
			if _, err := b.exec.Sell(ctx, accountID, symbol, price, model.ModeTraining); err != nil {
				return trades, err
			}
			trades++
		}
	}
	return trades, nil
}

// RunTrainingStep executes exactly one backtest index against freshly fetched
// history, so a caller can drive the replay step by step.
func (b *Bot) RunTrainingStep(ctx context.Context, accountID int64, symbol string, limit, index, offset int) (StepResult, error) {
	closes, err := b.historicalCloses(ctx, symbol, limit, offset)
	if err != nil {
		return StepResult{}, err
	}
	return b.trainingStep(ctx, accountID, symbol, closes, nil, index)
}

// RunTrainingStepWithCandles is RunTrainingStep over a caller-supplied series.
// The candle timestamps are threaded into the ledger so persisted trade and
// position times reflect simulated time instead of wall-clock time.
func (b *Bot) RunTrainingStepWithCandles(ctx context.Context, accountID int64, symbol string, points []ClosePoint, index int) (StepResult, error) {
	closes := make([]decimal.Decimal, len(points))
	timestamps := make([]int64, len(points))
	for i, p := range points {
		closes[i] = p.Close
		timestamps[i] = p.Timestamp
	}
	return b.trainingStep(ctx, accountID, symbol, closes, timestamps, index)
}

func (b *Bot) trainingStep(ctx context.Context, accountID int64, symbol string, closes []decimal.Decimal, timestamps []int64, index int) (StepResult, error) {
	minIndex := b.cfg.Training.MinDecideLen()
	if index < minIndex {
		index = minIndex
	}
	if len(closes) == 0 || index >= len(closes) {
		return StepResult{Done: true, NextIndex: len(closes), Signal: strategy.SignalHold}, nil
	}

	signal := b.cfg.Training.Decide(closes[:index+1])
	price := closes[index]

	var at time.Time
	if len(timestamps) > index {
		at = time.UnixMilli(timestamps[index])
	}

	trades := 0
	switch signal {
	case strategy.SignalBuy:
		if _, err := b.exec.BuyAt(ctx, accountID, symbol, price, model.ModeTraining, at); err != nil {
			return StepResult{}, err
		}
		trades = 1
	case strategy.SignalSell:
		if _, err := b.exec.SellAt(ctx, accountID, symbol, price, model.ModeTraining, at); err != nil {
			return StepResult{}, err
		}
		trades = 1
	}

	nextIndex := index + 1
	return StepResult{
		Done:           nextIndex >= len(closes),
		NextIndex:      nextIndex,
		TradesExecuted: trades,
		Signal:         signal,
	}, nil
}

func (b *Bot) historicalCloses(ctx context.Context, symbol string, limit, offset int) ([]decimal.Decimal, error) {
	candles, err := b.prices.Candles(ctx, symbol, b.cfg.CandleInterval, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("bot: fetching history for %s: %w", symbol, err)
	}
	return market.Closes(candles), nil
}
