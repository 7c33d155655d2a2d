package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC bar. Timestamp is the bar open time in Unix
// milliseconds. Prices are kept as decimals end to end; float conversion
// would break the fixed-point signal arithmetic downstream.
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

// Source provides market data. Implementations must return candles ordered
// oldest to newest; offset counts back from the most recent candle, so
// offset=0 returns the latest limit candles.
type Source interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Candles(ctx context.Context, symbol, interval string, limit, offset int) ([]Candle, error)
}

// Closes extracts the close series from candles.
func Closes(candles []Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
