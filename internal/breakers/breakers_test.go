package breakers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultConfig() Config {
	return Config{
		MaxDailyLossPct:    0.05,
		MaxDrawdownPct:     0.20,
		MaxConsecutiveLoss: 5,
		MaxDailyTrades:     20,
		MaxPositionSizePct: 0.05,
	}
}

func TestCheck_PermitsWithinAllLimits(t *testing.T) {
	b := New(defaultConfig())
	ok, reason := b.Check(TradingState{
		InitialBalance:        10000,
		DailyPnL:              -100,
		CurrentPortfolioValue: 10000,
		PeakPortfolioValue:    10000,
	})
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCheck_DailyLossDenies(t *testing.T) {
	b := New(defaultConfig())
	ok, reason := b.Check(TradingState{
		InitialBalance: 10000,
		DailyPnL:       -600,
	})
	assert.False(t, ok)
	assert.Equal(t, DailyLoss, reason)
}

func TestCheck_MaxDrawdownDenies(t *testing.T) {
	b := New(defaultConfig())
	ok, reason := b.Check(TradingState{
		InitialBalance:        10000,
		CurrentPortfolioValue: 7500,
		PeakPortfolioValue:    10000,
	})
	assert.False(t, ok)
	assert.Equal(t, MaxDrawdown, reason)
}

func TestCheck_ConsecutiveLossesDenies(t *testing.T) {
	b := New(defaultConfig())
	ok, reason := b.Check(TradingState{
		InitialBalance:    10000,
		ConsecutiveLosses: 5,
	})
	assert.False(t, ok)
	assert.Equal(t, ConsecutiveLosses, reason)
}

func TestCheck_DailyTradeLimitDenies(t *testing.T) {
	b := New(defaultConfig())
	ok, reason := b.Check(TradingState{
		InitialBalance:  10000,
		DailyTradeCount: 20,
	})
	assert.False(t, ok)
	assert.Equal(t, DailyTradeLimit, reason)
}

func TestCheck_FirstMatchWinsDailyLossOverDrawdown(t *testing.T) {
	b := New(defaultConfig())
	ok, reason := b.Check(TradingState{
		InitialBalance:        10000,
		DailyPnL:              -600,
		CurrentPortfolioValue: 5000,
		PeakPortfolioValue:    10000,
	})
	assert.False(t, ok)
	assert.Equal(t, DailyLoss, reason)
}
