// Package positions implements C8: the Position Manager. All mutating
// operations run under a single mutex so concurrent readers (check_exits
// from the trading loop, portfolio_value from the engine's portfolio report loop)
// see a consistent snapshot of cash, trading state, and the positions map.
package positions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dexswing/internal/breakers"
	"dexswing/internal/positionstore"
)

var (
	ErrAlreadyOpen      = errors.New("positions: symbol already has an open position")
	ErrInvalidQuantity  = errors.New("positions: quantity must be positive")
	ErrInsufficientCash = errors.New("positions: insufficient cash balance")
	ErrNotOpen          = errors.New("positions: position is not open")
)

// Metrics is the subset of metrics.PrometheusMetrics the Position Manager
// reports to. Satisfied by *metrics.PrometheusMetrics; a nil Metrics
// silently disables recording (used in tests).
type Metrics interface {
	RecordRealizedPnL(exitReason string, pnl float64)
}

// ExitConfig configures the trailing stop/take-profit state machine.
type ExitConfig struct {
	StopLossPct     float64
	TPActivationPct float64
	TrailPct        float64
	TimeStop        time.Duration
}

// Manager owns the in-memory positions map plus the durable mirror in
// positionstore, and the daily/consecutive trading-state counters the
// circuit breakers read.
type Manager struct {
	mu sync.Mutex

	store   positionstore.Store
	logger  *zap.Logger
	metrics Metrics

	userID        string
	tradeFeeFixed float64
	exit          ExitConfig

	cashBalance    float64
	initialBalance float64

	dailyPnL           float64
	dailyTradeCount    int
	consecutiveLosses  int
	peakPortfolioValue float64

	byID     map[uuid.UUID]positionstore.Position
	bySymbol map[string]uuid.UUID
}

// NewManager seeds the manager with initialBalance as both the starting
// cash balance and the circuit breaker baseline, and loads any Open
// positions already persisted for userID.
func NewManager(ctx context.Context, store positionstore.Store, logger *zap.Logger, metrics Metrics, userID string, initialBalance, tradeFeeFixed float64, exit ExitConfig) (*Manager, error) {
	m := &Manager{
		store:              store,
		logger:             logger.Named("positions"),
		metrics:            metrics,
		userID:             userID,
		tradeFeeFixed:      tradeFeeFixed,
		exit:               exit,
		cashBalance:        initialBalance,
		initialBalance:     initialBalance,
		peakPortfolioValue: initialBalance,
		byID:               make(map[uuid.UUID]positionstore.Position),
		bySymbol:           make(map[string]uuid.UUID),
	}

	open, err := store.LoadOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("positions: load open: %w", err)
	}
	var committed float64
	for _, p := range open {
		m.byID[p.ID] = p
		m.bySymbol[p.Symbol] = p.ID
		committed += p.EntryPrice*p.Quantity + tradeFeeFixed
	}
	m.cashBalance -= committed
	return m, nil
}

// OpenPosition implements open_position.
func (m *Manager) OpenPosition(ctx context.Context, symbol string, entryPrice, quantity float64, now time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySymbol[symbol]; exists {
		return uuid.UUID{}, ErrAlreadyOpen
	}
	if quantity <= 0 {
		return uuid.UUID{}, ErrInvalidQuantity
	}
	cost := entryPrice*quantity + m.tradeFeeFixed
	if cost > m.cashBalance {
		return uuid.UUID{}, ErrInsufficientCash
	}

	p := positionstore.Position{
		ID:           uuid.New(),
		UserID:       m.userID,
		Symbol:       symbol,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		EntryTime:    now,
		StopLoss:     entryPrice * (1 - m.exit.StopLossPct),
		TrailingHigh: entryPrice,
		Status:       positionstore.StatusOpen,
	}

	if err := m.store.Insert(ctx, p); err != nil {
		return uuid.UUID{}, fmt.Errorf("positions: persist open: %w", err)
	}

	m.byID[p.ID] = p
	m.bySymbol[symbol] = p.ID
	m.cashBalance -= cost
	m.dailyTradeCount++
	return p.ID, nil
}

// ClosePosition implements close_position.
func (m *Manager) ClosePosition(ctx context.Context, id uuid.UUID, exitPrice float64, reason positionstore.ExitReason, now time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked(ctx, id, exitPrice, reason, now)
}

func (m *Manager) closeLocked(ctx context.Context, id uuid.UUID, exitPrice float64, reason positionstore.ExitReason, now time.Time) (float64, error) {
	p, ok := m.byID[id]
	if !ok || p.Status != positionstore.StatusOpen {
		return 0, ErrNotOpen
	}

	entryFee := m.tradeFeeFixed
	exitFee := m.tradeFeeFixed
	gross := (exitPrice - p.EntryPrice) * p.Quantity
	realizedPnL := gross - entryFee - exitFee

	p.Status = positionstore.StatusClosed
	p.ExitPrice = &exitPrice
	p.ExitTime = &now
	p.ExitReason = reason
	p.RealizedPnL = &realizedPnL

	if err := m.store.Update(ctx, p); err != nil {
		return 0, fmt.Errorf("positions: persist close: %w", err)
	}

	m.byID[id] = p
	delete(m.bySymbol, p.Symbol)

	m.cashBalance += exitPrice*p.Quantity - exitFee
	m.dailyPnL += realizedPnL
	if realizedPnL < 0 {
		m.consecutiveLosses++
	} else {
		m.consecutiveLosses = 0
	}

	if m.metrics != nil {
		m.metrics.RecordRealizedPnL(string(reason), realizedPnL)
	}

	return realizedPnL, nil
}

// CheckExits implements check_exits, applying the trailing stop /
// take-profit / time-stop precedence (§4.8 step 3) to every Open
// position with a price in prices.
func (m *Manager) CheckExits(ctx context.Context, prices map[string]float64, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := make([]uuid.UUID, 0)
	for id, p := range m.byID {
		if p.Status != positionstore.StatusOpen {
			continue
		}
		current, ok := prices[p.Symbol]
		if !ok {
			continue
		}

		if current > p.TrailingHigh {
			p.TrailingHigh = current
		}

		activationPrice := p.EntryPrice * (1 + m.exit.TPActivationPct)
		if p.TrailingHigh >= activationPrice {
			tp := p.TrailingHigh * (1 - m.exit.TrailPct)
			p.TakeProfit = &tp
		}
		m.byID[id] = p

		var reason positionstore.ExitReason
		exit := false
		switch {
		case current <= p.StopLoss:
			reason, exit = positionstore.ExitStopLoss, true
		case p.TakeProfit != nil && current <= *p.TakeProfit:
			reason, exit = positionstore.ExitTakeProfit, true
		case now.Sub(p.EntryTime) >= m.exit.TimeStop:
			reason, exit = positionstore.ExitTimeStop, true
		}

		if exit {
			if _, err := m.closeLocked(ctx, id, current, reason, now); err != nil {
				m.logger.Warn("exit close failed", zap.String("position", id.String()), zap.Error(err))
				continue
			}
			closed = append(closed, id)
		}
	}
	return closed, nil
}

// PortfolioValue implements portfolio_value.
func (m *Manager) PortfolioValue(prices map[string]float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolioValueLocked(prices)
}

func (m *Manager) portfolioValueLocked(prices map[string]float64) float64 {
	value := m.cashBalance
	for _, p := range m.byID {
		if p.Status != positionstore.StatusOpen {
			continue
		}
		if price, ok := prices[p.Symbol]; ok {
			value += p.Quantity * price
		}
	}
	if value > m.peakPortfolioValue {
		m.peakPortfolioValue = value
	}
	return value
}

// AvailableCash implements available_cash.
func (m *Manager) AvailableCash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cashBalance
}

// OpenSymbols returns the symbols with a currently Open position.
func (m *Manager) OpenSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.bySymbol))
	for sym := range m.bySymbol {
		out = append(out, sym)
	}
	return out
}

// HasOpenPosition reports whether symbol currently has an Open position.
func (m *Manager) HasOpenPosition(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bySymbol[symbol]
	return ok
}

// PositionID returns the Open position id for symbol, if any.
func (m *Manager) PositionID(symbol string) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySymbol[symbol]
	return id, ok
}

// TradingState builds the breakers.TradingState snapshot for the given
// current portfolio value.
func (m *Manager) TradingState(currentPortfolioValue float64) breakers.TradingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return breakers.TradingState{
		InitialBalance:        m.initialBalance,
		DailyPnL:              m.dailyPnL,
		CurrentPortfolioValue: currentPortfolioValue,
		PeakPortfolioValue:    m.peakPortfolioValue,
		ConsecutiveLosses:     m.consecutiveLosses,
		DailyTradeCount:       m.dailyTradeCount,
	}
}

// ResetDaily zeroes daily_pnl and daily_trade_count at UTC midnight
// rollover (§4.10 step 1). consecutive_losses is deliberately untouched —
// it resets only on a winning close (§4.8).
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = 0
	m.dailyTradeCount = 0
}
