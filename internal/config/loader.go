package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigLoader reads the YAML config file and fills in defaults for any
// field the operator left zero-valued.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (cl *ConfigLoader) LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cl.applyDefaults(&cfg)
	return &cfg, nil
}

func (cl *ConfigLoader) applyDefaults(cfg *Config) {
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Engine.InitialPortfolioValue == 0 {
		cfg.Engine.InitialPortfolioValue = 10000
	}
	if cfg.Engine.PollIntervalMinutes == 0 {
		cfg.Engine.PollIntervalMinutes = 5
	}
	if cfg.Engine.TradingOffsetSeconds == 0 {
		cfg.Engine.TradingOffsetSeconds = 30
	}
	if cfg.Engine.DiscoveryIntervalMin == 0 {
		cfg.Engine.DiscoveryIntervalMin = 30
	}
	if cfg.Engine.LookbackHours == 0 {
		cfg.Engine.LookbackHours = 24
	}
	if cfg.Engine.CandleKeepHours == 0 {
		cfg.Engine.CandleKeepHours = 48
	}
	if cfg.Engine.TradeFeeFixed == 0 {
		cfg.Engine.TradeFeeFixed = 0.5
	}
	if cfg.Engine.MinPositionNotional == 0 {
		cfg.Engine.MinPositionNotional = 10
	}
	if cfg.Engine.UserID == "" {
		cfg.Engine.UserID = "default"
	}

	if cfg.Signal.RSIPeriod == 0 {
		cfg.Signal.RSIPeriod = 14
	}
	if cfg.Signal.RSIOversold == 0 {
		cfg.Signal.RSIOversold = 30
	}
	if cfg.Signal.RSIOverbought == 0 {
		cfg.Signal.RSIOverbought = 70
	}
	if cfg.Signal.ShortMAPeriod == 0 {
		cfg.Signal.ShortMAPeriod = 10
	}
	if cfg.Signal.LongMAPeriod == 0 {
		cfg.Signal.LongMAPeriod = 20
	}
	if cfg.Signal.MA20Period == 0 {
		cfg.Signal.MA20Period = 20
	}
	if cfg.Signal.VolumeThreshold == 0 {
		cfg.Signal.VolumeThreshold = 1.5
	}
	if cfg.Signal.LookbackHours == 0 {
		cfg.Signal.LookbackHours = cfg.Engine.LookbackHours
	}
	if cfg.Signal.PanicRSIThreshold == 0 {
		cfg.Signal.PanicRSIThreshold = 50
	}
	if cfg.Signal.PanicPriceDropPct == 0 {
		cfg.Signal.PanicPriceDropPct = 0.10
	}
	if cfg.Signal.PanicWindowBars == 0 {
		cfg.Signal.PanicWindowBars = 4
	}
	if cfg.Signal.UniformityTolSecs == 0 {
		cfg.Signal.UniformityTolSecs = 60
	}

	if cfg.Exits.StopLossPct == 0 {
		cfg.Exits.StopLossPct = 0.08
	}
	if cfg.Exits.TPActivationPct == 0 {
		cfg.Exits.TPActivationPct = 0.12
	}
	if cfg.Exits.TrailPct == 0 {
		cfg.Exits.TrailPct = 0.05
	}
	if cfg.Exits.TimeStopDays == 0 {
		cfg.Exits.TimeStopDays = 14
	}

	if cfg.Breakers.MaxDailyLossPct == 0 {
		cfg.Breakers.MaxDailyLossPct = 0.05
	}
	if cfg.Breakers.MaxDrawdownPct == 0 {
		cfg.Breakers.MaxDrawdownPct = 0.20
	}
	if cfg.Breakers.MaxConsecutiveLoss == 0 {
		cfg.Breakers.MaxConsecutiveLoss = 5
	}
	if cfg.Breakers.MaxDailyTrades == 0 {
		cfg.Breakers.MaxDailyTrades = 20
	}
	if cfg.Breakers.MaxPositionSizePct == 0 {
		cfg.Breakers.MaxPositionSizePct = 0.05
	}

	if cfg.Discovery.TopN == 0 {
		cfg.Discovery.TopN = 20
	}
	if cfg.Discovery.MaxWatchlist == 0 {
		cfg.Discovery.MaxWatchlist = 10
	}
	if cfg.Discovery.StaleAfterHours == 0 {
		cfg.Discovery.StaleAfterHours = 24
	}
	if cfg.Discovery.RemoveAfterDays == 0 {
		cfg.Discovery.RemoveAfterDays = 7
	}
	if cfg.Discovery.RateLimitPerSec == 0 {
		cfg.Discovery.RateLimitPerSec = 1
	}

	if cfg.Backfill.Days == 0 {
		cfg.Backfill.Days = 7
	}
	if cfg.Backfill.RateLimitPerMin == 0 {
		cfg.Backfill.RateLimitPerMin = 30
	}
	if cfg.Backfill.MaxRetries == 0 {
		cfg.Backfill.MaxRetries = 3
	}
	if cfg.Backfill.InitialBackoffMillis == 0 {
		cfg.Backfill.InitialBackoffMillis = 250
	}

	if cfg.Providers.QuoteRatePerSec == 0 {
		cfg.Providers.QuoteRatePerSec = 5
	}

	if cfg.Monitoring.MetricsAddr == "" {
		cfg.Monitoring.MetricsAddr = ":9090"
	}
	if cfg.Monitoring.StatusAddr == "" {
		cfg.Monitoring.StatusAddr = ":8090"
	}
}

func (c *Config) GetRedisDatabase() int {
	return c.Redis.DB
}
