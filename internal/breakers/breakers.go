// Package breakers implements C7: a pure pre-trade denial gate over the
// engine's daily trading state.
package breakers

// Config mirrors config.BreakersConfig but travels as a plain value so
// the check has no dependency on the config package.
type Config struct {
	MaxDailyLossPct    float64
	MaxDrawdownPct     float64
	MaxConsecutiveLoss int
	MaxDailyTrades     int
	MaxPositionSizePct float64
}

// TradingState is the subset of Position Manager state the breakers read.
// CurrentPortfolioValue and PeakPortfolioValue are supplied by C8.
type TradingState struct {
	InitialBalance        float64
	DailyPnL              float64
	CurrentPortfolioValue float64
	PeakPortfolioValue    float64
	ConsecutiveLosses     int
	DailyTradeCount       int
}

// Reason names which rule tripped.
type Reason string

const (
	DailyLoss         Reason = "DailyLoss"
	MaxDrawdown       Reason = "MaxDrawdown"
	ConsecutiveLosses Reason = "ConsecutiveLosses"
	DailyTradeLimit   Reason = "DailyTradeLimit"
)

// CircuitBreakers evaluates TradingState against Config.
type CircuitBreakers struct {
	cfg Config
}

func New(cfg Config) *CircuitBreakers {
	return &CircuitBreakers{cfg: cfg}
}

// Check returns (true, "") when new entries are permitted, or (false,
// reason) on the first matching denial rule, in the order §4.7 lists
// them. Open positions are never affected by a denial — only the
// Executor's Buy path consults this.
func (b *CircuitBreakers) Check(state TradingState) (bool, Reason) {
	if state.InitialBalance > 0 && state.DailyPnL/state.InitialBalance <= -b.cfg.MaxDailyLossPct {
		return false, DailyLoss
	}
	if state.PeakPortfolioValue > 0 {
		drawdown := (state.PeakPortfolioValue - state.CurrentPortfolioValue) / state.PeakPortfolioValue
		if drawdown >= b.cfg.MaxDrawdownPct {
			return false, MaxDrawdown
		}
	}
	if state.ConsecutiveLosses >= b.cfg.MaxConsecutiveLoss {
		return false, ConsecutiveLosses
	}
	if state.DailyTradeCount >= b.cfg.MaxDailyTrades {
		return false, DailyTradeLimit
	}
	return true, ""
}
