package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// Binance spot caps klines requests at 1000 rows.
const maxKlineLimit = 1000

// BinanceConfig tunes the spot REST client. Zero values fall back to the
// public endpoint with a 15s timeout.
type BinanceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// BinanceSource implements Source on the go-binance spot client.
type BinanceSource struct {
	client *binance.Client
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("market: symbol is required")
	}
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market: fetching latest price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("market: no price returned for %s", symbol)
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market: malformed price %q for %s: %w", prices[0].Price, symbol, err)
	}
	return price, nil
}

// Candles fetches limit+offset bars and drops the newest offset of them,
// which realizes the count-back-from-latest offset semantics within a single
// klines request.
func (s *BinanceSource) Candles(ctx context.Context, symbol, interval string, limit, offset int) ([]Candle, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("market: symbol is required")
	}
	interval = strings.TrimSpace(interval)
	if interval == "" {
		interval = "1m"
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	fetch := limit + offset
	if fetch > maxKlineLimit {
		return nil, fmt.Errorf("market: limit+offset %d exceeds the %d klines cap", fetch, maxKlineLimit)
	}

	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(fetch).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: fetching klines for %s: %w", symbol, err)
	}

	out := make([]Candle, 0, len(klines))
	for _, kl := range klines {
		if kl == nil {
			continue
		}
		candle, err := parseKline(kl)
		if err != nil {
			return nil, fmt.Errorf("market: malformed kline for %s: %w", symbol, err)
		}
		out = append(out, candle)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[:len(out)-offset]
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func parseKline(kl *binance.Kline) (Candle, error) {
	open, err := decimal.NewFromString(kl.Open)
	if err != nil {
		return Candle{}, err
	}
	high, err := decimal.NewFromString(kl.High)
	if err != nil {
		return Candle{}, err
	}
	low, err := decimal.NewFromString(kl.Low)
	if err != nil {
		return Candle{}, err
	}
	clos, err := decimal.NewFromString(kl.Close)
	if err != nil {
		return Candle{}, err
	}
	return Candle{
		Timestamp: kl.OpenTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     clos,
	}, nil
}
