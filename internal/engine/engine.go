// Package engine wires the three concurrent loops, their shared stores,
// and the external collaborators into a single supervised application.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dexswing/internal/backfill"
	"dexswing/internal/breakers"
	"dexswing/internal/bus"
	"dexswing/internal/candlestore"
	"dexswing/internal/config"
	"dexswing/internal/discoveryloop"
	"dexswing/internal/executor"
	"dexswing/internal/ingestor"
	"dexswing/internal/metrics"
	"dexswing/internal/positions"
	"dexswing/internal/positionstore"
	"dexswing/internal/providers"
	"dexswing/internal/ratelimit"
	"dexswing/internal/registry"
	"dexswing/internal/signals"
	"dexswing/internal/supervisor"
	"dexswing/internal/tradingloop"
	"dexswing/pkg/broadcaster"
)

// Engine composes the supervisor, the shared stores, the external
// collaborators, and the three loops (C4, C10, C11) into a single
// runnable application.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	redisClient  *redis.Client
	metrics      *metrics.PrometheusMetrics
	bus          *bus.Publisher
	broadcaster  *broadcaster.Broadcaster
	statusServer *http.Server

	candles  candlestore.Store
	posStore positionstore.Store
	registry registry.Store

	quoteProvider     providers.QuoteProvider
	discoveryProvider providers.DiscoveryProvider
	historical        providers.HistoricalProvider
	resolver          *providers.CoinListResolver
	backfiller        *backfill.Backfiller

	positions *positions.Manager
	breakers  *breakers.CircuitBreakers

	ingestorLoop  *ingestor.Ingestor
	tradingLoop   *tradingloop.Loop
	discoveryLoop *discoveryloop.Loop

	supervisor *supervisor.Supervisor
	ctx        context.Context
	cancel     context.CancelFunc
}

// New builds an Engine from configuration without starting anything.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, logger: logger}
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.redisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddress(),
		Password: cfg.Redis.Password,
		DB:       cfg.GetRedisDatabase(),
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := e.redisClient.Ping(e.ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	e.candles = candlestore.NewRedisStore(e.redisClient, logger)
	e.posStore = positionstore.NewRedisStore(e.redisClient, logger)
	e.registry = registry.NewRedisStore(e.redisClient, logger)

	e.metrics = metrics.NewPrometheusMetrics(logger)
	e.bus = bus.NewPublisher(e.redisClient, logger)
	e.broadcaster = broadcaster.NewBroadcaster(logger)

	e.quoteProvider = providers.NewHTTPQuoteProvider(cfg.Providers.QuoteBaseURL, logger)
	e.discoveryProvider = providers.NewHTTPDiscoveryProvider(cfg.Providers.DiscoveryBaseURL, logger)
	e.historical = providers.NewHTTPHistoricalProvider(cfg.Providers.HistoricalBaseURL, logger)
	e.resolver = providers.NewCoinListResolver("So11111111111111111111111111111111111111112", "solana")

	e.backfiller = backfill.New(
		e.resolver,
		e.historical,
		e.candles,
		logger,
		cfg.Backfill.MaxRetries,
		time.Duration(cfg.Backfill.InitialBackoffMillis)*time.Millisecond,
	)

	exitCfg := positions.ExitConfig{
		StopLossPct:     cfg.Exits.StopLossPct,
		TPActivationPct: cfg.Exits.TPActivationPct,
		TrailPct:        cfg.Exits.TrailPct,
		TimeStop:        cfg.Exits.TimeStop(),
	}
	posMgr, err := positions.NewManager(e.ctx, e.posStore, logger, e.metrics, cfg.Engine.UserID, cfg.Engine.InitialPortfolioValue, cfg.Engine.TradeFeeFixed, exitCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build position manager: %w", err)
	}
	e.positions = posMgr

	e.breakers = breakers.New(breakers.Config{
		MaxDailyLossPct:    cfg.Breakers.MaxDailyLossPct,
		MaxDrawdownPct:     cfg.Breakers.MaxDrawdownPct,
		MaxConsecutiveLoss: cfg.Breakers.MaxConsecutiveLoss,
		MaxDailyTrades:     cfg.Breakers.MaxDailyTrades,
		MaxPositionSizePct: cfg.Breakers.MaxPositionSizePct,
	})

	pollInterval := time.Duration(cfg.Engine.PollIntervalMinutes) * time.Minute
	tradingOffset := time.Duration(cfg.Engine.TradingOffsetSeconds) * time.Second

	ingestorLimiter := ratelimit.PerSecond(cfg.Providers.QuoteRatePerSec)
	e.ingestorLoop = ingestor.New(e.registry, e.candles, e.quoteProvider, ingestorLimiter, e.positions, e.metrics, logger, cfg.Engine.MustTrackSymbols, time.Duration(cfg.Engine.CandleKeepHours)*time.Hour, pollInterval)

	defaultSignal := signals.Config{
		RSIPeriod:         cfg.Signal.RSIPeriod,
		RSIOversold:       cfg.Signal.RSIOversold,
		RSIOverbought:     cfg.Signal.RSIOverbought,
		ShortMAPeriod:     cfg.Signal.ShortMAPeriod,
		LongMAPeriod:      cfg.Signal.LongMAPeriod,
		MA20Period:        cfg.Signal.MA20Period,
		VolumeThreshold:   cfg.Signal.VolumeThreshold,
		LookbackHours:     cfg.Signal.LookbackHours,
		EnablePanicBuy:    cfg.Signal.EnablePanicBuy,
		PanicRSIThreshold: cfg.Signal.PanicRSIThreshold,
		PanicPriceDropPct: cfg.Signal.PanicPriceDropPct,
		PanicWindowBars:   cfg.Signal.PanicWindowBars,
		UniformityTolSecs: cfg.Signal.UniformityTolSecs,
	}
	execCfg := executor.Config{
		InitialBalance:      cfg.Engine.InitialPortfolioValue,
		MaxPositionSizePct:  cfg.Breakers.MaxPositionSizePct,
		MinPositionNotional: cfg.Engine.MinPositionNotional,
	}
	e.tradingLoop = tradingloop.New(e.registry, e.candles, e.positions, e.breakers, e.bus, e.metrics, logger, cfg.Engine.MustTrackSymbols, defaultSignal, execCfg, pollInterval, tradingOffset)

	discoveryRateLimiter := ratelimit.PerSecond(cfg.Discovery.RateLimitPerSec)
	backfillLimiter := ratelimit.PerMinute(cfg.Backfill.RateLimitPerMin)
	filters := discoveryloop.SafetyFilters{
		MinLiquidityUSD: cfg.Discovery.MinLiquidityUSD,
		MinVolume24hUSD: cfg.Discovery.MinVolume24hUSD,
		MinFDVUSD:       cfg.Discovery.MinFDVUSD,
		MaxRank:         cfg.Discovery.MaxRank,
	}
	e.discoveryLoop = discoveryloop.New(
		e.registry, e.candles, e.discoveryProvider, e.backfiller, discoveryRateLimiter, backfillLimiter, e.positions, e.metrics, logger,
		cfg.Discovery.TopN, filters, cfg.Engine.MustTrackSymbols, cfg.Discovery.MaxWatchlist,
		time.Duration(cfg.Discovery.StaleAfterHours)*time.Hour, time.Duration(cfg.Discovery.RemoveAfterDays)*24*time.Hour,
		cfg.Backfill.Days,
	)

	e.supervisor = supervisor.NewSupervisor(logger)
	return e, nil
}

// Start registers the three loops with the supervisor, starts the
// metrics HTTP server, and loads the coin-list resolver.
func (e *Engine) Start() error {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if err := e.resolver.Load(e.ctx, e.cfg.Providers.HistoricalBaseURL, httpClient); err != nil {
		e.logger.Warn("coin list load failed, historical symbol resolution degraded", zap.Error(err))
	}

	if err := e.metrics.Start(e.cfg.Monitoring.MetricsAddr); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	addLoop := func(name string, fn supervisor.WorkerFunc) error {
		return e.supervisor.AddWorker(supervisor.WorkerConfig{
			Name:           name,
			MaxRetries:     0,
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     60 * time.Second,
			BackoffFactor:  2.0,
		}, fn)
	}

	if err := addLoop("ingestor", e.ingestorLoop.Run); err != nil {
		return fmt.Errorf("failed to register ingestor: %w", err)
	}
	if err := addLoop("tradingloop", e.tradingLoop.Run); err != nil {
		return fmt.Errorf("failed to register trading loop: %w", err)
	}
	if err := addLoop("discoveryloop", e.discoveryLoop.Run); err != nil {
		return fmt.Errorf("failed to register discovery loop: %w", err)
	}

	if err := e.supervisor.Start(); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	go e.reportPortfolioLoop()
	e.startStatusServer()

	e.logger.Info("engine started",
		zap.String("user_id", e.cfg.Engine.UserID),
		zap.Float64("initial_portfolio_value", e.cfg.Engine.InitialPortfolioValue),
	)
	return nil
}

// reportPortfolioLoop periodically publishes a portfolio snapshot and
// refreshes the gauge metrics, independent of the trading loop's own
// cadence.
func (e *Engine) reportPortfolioLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			count, err := e.registry.CountActive(e.ctx)
			if err == nil {
				e.metrics.SetRegistrySize(count)
			}
			prices := make(map[string]float64)
			for _, sym := range e.positions.OpenSymbols() {
				if cs, err := e.candles.LoadCandles(e.ctx, sym, time.Hour); err == nil && len(cs) > 0 {
					prices[sym] = cs[len(cs)-1].Close
				}
			}
			value := e.positions.PortfolioValue(prices)
			openCount := len(e.positions.OpenSymbols())
			e.metrics.SetPortfolioValue(e.cfg.Engine.UserID, value)
			e.metrics.SetOpenPositions(e.cfg.Engine.UserID, openCount)

			_ = e.bus.PublishPortfolio(bus.PortfolioSnapshotEvent{
				UserID:         e.cfg.Engine.UserID,
				PortfolioValue: value,
				CashBalance:    e.positions.AvailableCash(),
				OpenPositions:  openCount,
				Timestamp:      time.Now().UTC(),
			})
		}
	}
}

// RunBackfill executes a single one-shot backfill and returns immediately
// — used by the CLI's `backfill` subcommand.
func (e *Engine) RunBackfill(ctx context.Context, symbol, address string, days int, force bool) (backfill.Stats, error) {
	return e.backfiller.Run(ctx, symbol, address, days, force)
}

// Shutdown stops the supervisor, the metrics server, and releases the
// Redis connection.
func (e *Engine) Shutdown() error {
	e.logger.Info("shutting down engine")
	e.cancel()

	if e.statusServer != nil {
		if err := e.statusServer.Close(); err != nil {
			e.logger.Error("error closing status server", zap.Error(err))
		}
	}
	if err := e.supervisor.Stop(); err != nil {
		e.logger.Error("error stopping supervisor", zap.Error(err))
	}
	if err := e.metrics.Stop(); err != nil {
		e.logger.Error("error stopping metrics server", zap.Error(err))
	}
	if err := e.bus.Close(); err != nil {
		e.logger.Error("error closing bus", zap.Error(err))
	}
	if err := e.redisClient.Close(); err != nil {
		e.logger.Error("error closing redis client", zap.Error(err))
	}

	e.logger.Info("engine shutdown complete")
	return nil
}
