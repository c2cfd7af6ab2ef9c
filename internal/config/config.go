package config

import (
	"strconv"
	"time"
)

// Config represents the complete application configuration for the
// swing-trading engine: cadences, risk parameters, discovery filters and
// the always-tracked symbol set.
type Config struct {
	Redis      RedisConfig      `yaml:"redis"`
	Engine     EngineConfig     `yaml:"engine"`
	Signal     SignalDefaults   `yaml:"signal_defaults"`
	Exits      ExitConfig       `yaml:"exits"`
	Breakers   BreakersConfig   `yaml:"breakers"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

// RedisConfig represents Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EngineConfig carries portfolio and loop cadence settings.
// DiscoveryIntervalMin is loaded and defaulted but not read: the discovery
// loop always runs on a fixed 30-minute cadence.
type EngineConfig struct {
	UserID                string   `yaml:"user_id"`
	InitialPortfolioValue float64  `yaml:"initial_portfolio_value"`
	PollIntervalMinutes   int      `yaml:"poll_interval_minutes"`
	TradingOffsetSeconds  int      `yaml:"trading_offset_seconds"`
	DiscoveryIntervalMin  int      `yaml:"discovery_interval_minutes"`
	LookbackHours         int      `yaml:"lookback_hours"`
	MustTrackSymbols      []string `yaml:"must_track_symbols"`
	CandleKeepHours       int      `yaml:"candle_keep_hours"`
	TradeFeeFixed         float64  `yaml:"trade_fee_fixed"`
	MinPositionNotional   float64  `yaml:"min_position_notional"`
}

// SignalDefaults seeds SignalConfig for tokens that don't carry a
// per-token strategy_config override in the registry.
type SignalDefaults struct {
	RSIPeriod         int     `yaml:"rsi_period"`
	RSIOversold       float64 `yaml:"rsi_oversold"`
	RSIOverbought     float64 `yaml:"rsi_overbought"`
	ShortMAPeriod     int     `yaml:"short_ma_period"`
	LongMAPeriod      int     `yaml:"long_ma_period"`
	MA20Period        int     `yaml:"ma20_period"`
	VolumeThreshold   float64 `yaml:"volume_threshold"`
	LookbackHours     int     `yaml:"lookback_hours"`
	EnablePanicBuy    bool    `yaml:"enable_panic_buy"`
	PanicRSIThreshold float64 `yaml:"panic_rsi_threshold"`
	PanicPriceDropPct float64 `yaml:"panic_price_drop_pct"`
	PanicWindowBars   int     `yaml:"panic_window_bars"`
	UniformityTolSecs int     `yaml:"uniformity_tolerance_secs"`
}

// ExitConfig configures the Position Manager's exit state machine.
type ExitConfig struct {
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	TPActivationPct float64 `yaml:"tp_activation_pct"`
	TrailPct        float64 `yaml:"trail_pct"`
	TimeStopDays    int     `yaml:"time_stop_days"`
}

// TimeStop returns the configured time stop as a Duration.
func (e ExitConfig) TimeStop() time.Duration {
	return time.Duration(e.TimeStopDays) * 24 * time.Hour
}

// BreakersConfig configures the circuit breakers (C7).
type BreakersConfig struct {
	MaxDailyLossPct    float64 `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct     float64 `yaml:"max_drawdown_pct"`
	MaxConsecutiveLoss int     `yaml:"max_consecutive_losses"`
	MaxDailyTrades     int     `yaml:"max_daily_trades"`
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"`
}

// DiscoveryConfig configures the discovery loop's safety filters.
type DiscoveryConfig struct {
	TopN            int     `yaml:"top_n"`
	MinLiquidityUSD float64 `yaml:"min_liquidity_usd"`
	MinVolume24hUSD float64 `yaml:"min_volume_24h_usd"`
	MinFDVUSD       float64 `yaml:"min_fdv_usd"`
	MaxRank         int     `yaml:"max_rank"`
	MaxWatchlist    int     `yaml:"max_watchlist"`
	StaleAfterHours int     `yaml:"stale_after_hours"`
	RemoveAfterDays int     `yaml:"remove_after_days"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// BackfillConfig configures the historical backfill defaults.
type BackfillConfig struct {
	Days                 int     `yaml:"days"`
	RateLimitPerMin      float64 `yaml:"rate_limit_per_min"`
	MaxRetries           int     `yaml:"max_retries"`
	InitialBackoffMillis int     `yaml:"initial_backoff_millis"`
}

// MonitoringConfig configures Prometheus/status exposure.
type MonitoringConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	StatusAddr  string `yaml:"status_addr"`
}

// ProvidersConfig carries the base URLs and rate limits for the external
// collaborators.
type ProvidersConfig struct {
	QuoteBaseURL      string  `yaml:"quote_base_url"`
	DiscoveryBaseURL  string  `yaml:"discovery_base_url"`
	HistoricalBaseURL string  `yaml:"historical_base_url"`
	QuoteRatePerSec   float64 `yaml:"quote_rate_limit_per_sec"`
}

// GetRedisAddress returns host:port for dialing Redis.
func (c *Config) GetRedisAddress() string {
	port := c.Redis.Port
	if port == 0 {
		port = 6379
	}
	return c.Redis.Host + ":" + strconv.Itoa(port)
}
