package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func series(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = dec(v)
	}
	return out
}

func flat(n int, value string) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = dec(value)
	}
	return out
}

func TestNewMACrossoverValidation(t *testing.T) {
	_, err := NewMACrossover(5, 20)
	assert.NoError(t, err)

	_, err = NewMACrossover(20, 5)
	assert.Error(t, err)

	_, err = NewMACrossover(5, 5)
	assert.Error(t, err)

	_, err = NewMACrossover(0, 5)
	assert.Error(t, err)
}

func TestSMAScaleAndRounding(t *testing.T) {
	closes := series("1", "2", "2")
	got := sma(closes, 2, 3)
	assert.True(t, got.Equal(dec("1.66666667")), "got %s", got)

	// Exactly half a unit at the 9th place rounds up.
	closes = series("0.00000001", "0.00000002")
	got = sma(closes, 1, 2)
	assert.True(t, got.Equal(dec("0.00000002")), "got %s", got)
}

func TestDecideInsufficientHistory(t *testing.T) {
	s, err := NewMACrossover(5, 20)
	require.NoError(t, err)

	assert.Equal(t, SignalHold, s.Decide(nil))
	assert.Equal(t, SignalHold, s.Decide(flat(20, "100")))
	assert.NotEqual(t, SignalHold, s.Decide(append(flat(20, "100"), dec("200"))))
}

func TestDecideUpwardCross(t *testing.T) {
	s, err := NewMACrossover(5, 20)
	require.NoError(t, err)

	// 20 flat closes, a dip, then a spike: the short average crosses the
	// long average from below.
	closes := append(flat(20, "100"), dec("50"), dec("200"))
	assert.Equal(t, SignalBuy, s.Decide(closes))
}

func TestDecideDownwardCross(t *testing.T) {
	s, err := NewMACrossover(5, 20)
	require.NoError(t, err)

	closes := append(flat(20, "100"),
		dec("100"), dec("100"), dec("100"), dec("100"), dec("110"), dec("80"))
	assert.Equal(t, SignalSell, s.Decide(closes))
}

func TestDecideTieCountsAsSameSide(t *testing.T) {
	s, err := NewMACrossover(5, 20)
	require.NoError(t, err)

	// Both previous SMAs sit exactly at 100; a same-step upward move still
	// triggers because the prior comparison is non-strict.
	closes := append(flat(20, "100"), dec("200"))
	assert.Equal(t, SignalBuy, s.Decide(closes))

	closes = append(flat(20, "100"), dec("50"))
	assert.Equal(t, SignalSell, s.Decide(closes))
}

func TestDecideHoldWithoutCross(t *testing.T) {
	s, err := NewMACrossover(5, 20)
	require.NoError(t, err)

	assert.Equal(t, SignalHold, s.Decide(flat(25, "100")))
}

func TestDecideIsPure(t *testing.T) {
	s, err := NewMACrossover(5, 20)
	require.NoError(t, err)

	closes := append(flat(20, "100"), dec("50"), dec("200"))
	first := s.Decide(closes)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Decide(closes))
	}
}

func TestTrendSignalRequiresOnlyLongWindow(t *testing.T) {
	s, err := NewMACrossover(3, 8)
	require.NoError(t, err)

	assert.Equal(t, SignalHold, s.TrendSignal(flat(7, "100"), decimal.Zero))

	closes := append(flat(5, "100"), dec("110"), dec("120"), dec("130"))
	assert.Equal(t, SignalBuy, s.TrendSignal(closes, decimal.Zero))

	closes = append(flat(5, "100"), dec("90"), dec("80"), dec("70"))
	assert.Equal(t, SignalSell, s.TrendSignal(closes, decimal.Zero))

	assert.Equal(t, SignalHold, s.TrendSignal(flat(8, "100"), decimal.Zero))
}

func TestTrendSignalDeadZone(t *testing.T) {
	s, err := NewMACrossover(1, 3)
	require.NoError(t, err)

	closes := series("1", "2", "2")
	// short=2, long=1.66666667: a 25% dead-zone swallows the gap.
	assert.Equal(t, SignalHold, s.TrendSignal(closes, dec("0.25")))
	// A 10% dead-zone does not.
	assert.Equal(t, SignalBuy, s.TrendSignal(closes, dec("0.10")))
	// Zero epsilon disables the dead-zone entirely.
	assert.Equal(t, SignalBuy, s.TrendSignal(closes, decimal.Zero))
}
