// Package bus publishes engine status events to Redis pub/sub: executor
// decisions and periodic portfolio snapshots, throttled the way the
// original price-tick publisher was.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DecisionsChannel = "dexswing:decisions"
	PortfolioChannel = "dexswing:portfolio"
)

// ExecutionDecisionEvent is published for every executor decision the
// trading loop applies: execute, close, or skip.
type ExecutionDecisionEvent struct {
	Symbol       string    `json:"symbol"`
	Kind         string    `json:"kind"`
	Quantity     float64   `json:"quantity,omitempty"`
	Price        float64   `json:"price"`
	SignalReason string    `json:"signal_reason,omitempty"`
	SkipReason   string    `json:"skip_reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PortfolioSnapshotEvent is published once a minute by the engine's
// portfolio report loop.
type PortfolioSnapshotEvent struct {
	UserID         string    `json:"user_id"`
	PortfolioValue float64   `json:"portfolio_value"`
	CashBalance    float64   `json:"cash_balance"`
	OpenPositions  int       `json:"open_positions"`
	DailyPnL       float64   `json:"daily_pnl"`
	Timestamp      time.Time `json:"timestamp"`
}

// PublishMetrics tracks publishing statistics.
type PublishMetrics struct {
	TotalEvents      int64         `json:"total_events"`
	SuccessfulEvents int64         `json:"successful_events"`
	FailedEvents     int64         `json:"failed_events"`
	ThrottledEvents  int64         `json:"throttled_events"`
	AverageLatency   time.Duration `json:"average_latency"`
	LastPublish      time.Time     `json:"last_publish"`
}

// Publisher publishes engine status events to Redis pub/sub with
// throttling, so a runaway loop can never flood subscribers.
type Publisher struct {
	client  *redis.Client
	logger  *zap.Logger
	metrics PublishMetrics
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	maxMessagesPerSecond int
	messageCount         int
	lastResetTime        time.Time
	throttleMutex        sync.Mutex
}

// NewPublisher creates a new status event publisher.
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Publisher{
		client:               client,
		logger:               logger.Named("bus"),
		ctx:                  ctx,
		cancel:               cancel,
		maxMessagesPerSecond: 50,
		lastResetTime:        time.Now(),
	}
}

// PublishDecision publishes an executor decision event.
func (p *Publisher) PublishDecision(ev ExecutionDecisionEvent) error {
	return p.publishJSON(DecisionsChannel, ev)
}

// PublishPortfolio publishes a portfolio snapshot event.
func (p *Publisher) PublishPortfolio(ev PortfolioSnapshotEvent) error {
	return p.publishJSON(PortfolioChannel, ev)
}

func (p *Publisher) publishJSON(channel string, payload interface{}) error {
	if !p.checkThrottle() {
		p.updateMetrics(false, 0, true)
		p.logger.Debug("event throttled", zap.String("channel", channel))
		return fmt.Errorf("event throttled - rate limit exceeded")
	}

	start := time.Now()

	data, err := json.Marshal(payload)
	if err != nil {
		p.updateMetrics(false, time.Since(start), false)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(p.ctx, channel, data).Err(); err != nil {
		p.updateMetrics(false, time.Since(start), false)
		p.logger.Error("failed to publish event", zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.updateMetrics(true, time.Since(start), false)
	return nil
}

func (p *Publisher) checkThrottle() bool {
	p.throttleMutex.Lock()
	defer p.throttleMutex.Unlock()

	now := time.Now()
	if now.Sub(p.lastResetTime) >= time.Second {
		p.messageCount = 0
		p.lastResetTime = now
	}

	if p.messageCount >= p.maxMessagesPerSecond {
		return false
	}
	p.messageCount++
	return true
}

// SetThrottleLimit sets the maximum events per second.
func (p *Publisher) SetThrottleLimit(limit int) {
	p.throttleMutex.Lock()
	defer p.throttleMutex.Unlock()
	p.maxMessagesPerSecond = limit
}

func (p *Publisher) updateMetrics(success bool, latency time.Duration, throttled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.TotalEvents++
	if throttled {
		p.metrics.ThrottledEvents++
		return
	}

	if success {
		p.metrics.SuccessfulEvents++
	} else {
		p.metrics.FailedEvents++
	}

	if p.metrics.TotalEvents == 1 {
		p.metrics.AverageLatency = latency
	} else {
		p.metrics.AverageLatency = time.Duration(
			(int64(p.metrics.AverageLatency)*p.metrics.TotalEvents + int64(latency)) / (p.metrics.TotalEvents + 1),
		)
	}

	p.metrics.LastPublish = time.Now()
}

// GetMetrics returns current publishing metrics.
func (p *Publisher) GetMetrics() PublishMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Health reports whether the Redis connection is reachable.
func (p *Publisher) Health() bool {
	if err := p.client.Ping(p.ctx).Err(); err != nil {
		p.logger.Error("redis health check failed", zap.Error(err))
		return false
	}
	return true
}

// Close releases the publisher's background context.
func (p *Publisher) Close() error {
	p.cancel()
	return nil
}
