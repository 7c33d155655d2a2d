package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// smaScale is the fixed-point scale for all moving-average arithmetic. It is
// part of the observable contract: changing it breaks comparability with
// historical runs.
const smaScale = 8

// MACrossover is an immutable simple-moving-average crossover strategy.
// The zero value is not usable; build one with NewMACrossover.
type MACrossover struct {
	ShortWindow int
	LongWindow  int
}

// NewMACrossover validates the window pair. Short must be strictly smaller
// than long and both must be positive.
func NewMACrossover(short, long int) (MACrossover, error) {
	if short <= 0 || long <= 0 {
		return MACrossover{}, fmt.Errorf("strategy: windows must be positive, got %d/%d", short, long)
	}
	if short >= long {
		return MACrossover{}, fmt.Errorf("strategy: short window %d must be smaller than long window %d", short, long)
	}
	return MACrossover{ShortWindow: short, LongWindow: long}, nil
}

// MinDecideLen is the minimum series length Decide needs to produce a
// non-trivial signal: one extra close so the previous-bar SMAs exist.
func (s MACrossover) MinDecideLen() int {
	return s.LongWindow + 1
}

// Decide evaluates the classic crossover on the full series and returns BUY
// on an upward cross, SELL on a downward cross and HOLD otherwise. A tie at
// the previous bar counts as "still on the same side", so a move off the tie
// can trigger in either direction.
func (s MACrossover) Decide(closes []decimal.Decimal) Signal {
	if len(closes) < s.LongWindow+1 {
		return SignalHold
	}

	last := len(closes) - 1

	shortNow := sma(closes, last, s.ShortWindow)
	longNow := sma(closes, last, s.LongWindow)
	shortPrev := sma(closes, last-1, s.ShortWindow)
	longPrev := sma(closes, last-1, s.LongWindow)

	crossUp := shortPrev.Cmp(longPrev) <= 0 && shortNow.Cmp(longNow) > 0
	crossDown := shortPrev.Cmp(longPrev) >= 0 && shortNow.Cmp(longNow) < 0

	switch {
	case crossUp:
		return SignalBuy
	case crossDown:
		return SignalSell
	default:
		return SignalHold
	}
}

// TrendSignal is the live-stepping variant: it only compares the current
// SMAs, so it fires while the short average stays on one side of the long
// average rather than only at the cross. epsilonPct > 0 adds a dead-zone
// around parity to suppress whipsaw; zero disables it.
func (s MACrossover) TrendSignal(closes []decimal.Decimal, epsilonPct decimal.Decimal) Signal {
	if len(closes) < s.LongWindow {
		return SignalHold
	}

	last := len(closes) - 1
	shortNow := sma(closes, last, s.ShortWindow)
	longNow := sma(closes, last, s.LongWindow)

	if epsilonPct.IsPositive() {
		diff := shortNow.Sub(longNow).Abs()
		threshold := longNow.Abs().Mul(epsilonPct)
		if diff.Cmp(threshold) <= 0 {
			return SignalHold
		}
	}

	switch shortNow.Cmp(longNow) {
	case 1:
		return SignalBuy
	case -1:
		return SignalSell
	default:
		return SignalHold
	}
}

// sma averages the window closes ending at endIndex, scale 8, rounding half
// away from zero (HALF_UP on the positive prices this engine sees).
func sma(closes []decimal.Decimal, endIndex, window int) decimal.Decimal {
	sum := decimal.Zero
	for i := endIndex - window + 1; i <= endIndex; i++ {
		sum = sum.Add(closes[i])
	}
	return sum.DivRound(decimal.NewFromInt(int64(window)), smaScale)
}
