// Package signals implements C6: a pure function from a recent candle
// window plus per-symbol configuration to a {Buy, Sell, Hold} signal.
package signals

import (
	"time"

	"dexswing/internal/candlestore"
)

// Signal is the generator's output. The core never carries a numeric
// payload — rationale strings are log-only, attached by callers.
type Signal string

const (
	Buy  Signal = "buy"
	Sell Signal = "sell"
	Hold Signal = "hold"
)

// Config mirrors config.SignalDefaults but travels with the candle window
// as a plain value — the generator never reaches into global config, so a
// token's opaque strategy_config can override any field per-symbol.
type Config struct {
	RSIPeriod         int     `json:"rsi_period"`
	RSIOversold       float64 `json:"rsi_oversold"`
	RSIOverbought     float64 `json:"rsi_overbought"`
	ShortMAPeriod     int     `json:"short_ma_period"`
	LongMAPeriod      int     `json:"long_ma_period"`
	MA20Period        int     `json:"ma20_period"`
	VolumeThreshold   float64 `json:"volume_threshold"`
	LookbackHours     int     `json:"lookback_hours"`
	EnablePanicBuy    bool    `json:"enable_panic_buy"`
	PanicRSIThreshold float64 `json:"panic_rsi_threshold"`
	PanicPriceDropPct float64 `json:"panic_price_drop_pct"`
	PanicWindowBars   int     `json:"panic_window_bars"`
	UniformityTolSecs int     `json:"uniformity_tolerance_secs"`
}

const barInterval = 5 * time.Minute

// liveTolerance and backfillTolerance are the two uniformity bounds of
// §4.6. The wider bound is used whenever the series may contain
// backfilled bars. A positive config.UniformityTolSecs replaces the chosen
// bound only when it is wider; it never tightens it.
const (
	liveTolerance     = 30 * time.Second
	backfillTolerance = 60 * time.Second
)

// lookbackSamples returns how many bars a window of cfg.LookbackHours
// should contain.
func lookbackSamples(cfg Config) int {
	if cfg.LookbackHours <= 0 {
		return 0
	}
	return int(time.Duration(cfg.LookbackHours) * time.Hour / barInterval)
}

// Generate implements generate_signal([Candle], SignalConfig) -> Signal.
// candles must be ascending by timestamp. mixedSource indicates the
// window may contain backfilled bars, widening the uniformity tolerance
// to ±60s instead of ±30s.
func Generate(candles []candlestore.Candle, cfg Config, mixedSource bool) (Signal, string) {
	need := lookbackSamples(cfg)
	if need <= 0 || len(candles) < need {
		return Hold, "warming up"
	}

	tol := liveTolerance
	if mixedSource {
		tol = backfillTolerance
	}
	if cfg.UniformityTolSecs > 0 {
		configured := time.Duration(cfg.UniformityTolSecs) * time.Second
		if configured > tol {
			tol = configured
		}
	}
	if !uniform(candles, tol) {
		return Hold, "non-uniform candle spacing"
	}

	closes := closesOf(candles)
	highs := highsOf(candles)
	volumes := volumesOf(candles)

	rsiSeries := wilderRSI(closes, cfg.RSIPeriod)
	if len(rsiSeries) < 2 {
		return Hold, "insufficient data for RSI"
	}
	rsiCurrent := rsiSeries[len(rsiSeries)-1]
	rsiPrevious := rsiSeries[len(rsiSeries)-2]

	shortMA, okShort := sma(closes, cfg.ShortMAPeriod)
	longMA, okLong := sma(closes, cfg.LongMAPeriod)
	ma20, okMA20 := sma(closes, cfg.MA20Period)
	if !okShort || !okLong || !okMA20 {
		return Hold, "insufficient data for moving averages"
	}

	lastClose := closes[len(closes)-1]

	sellSignal := rsiCurrent > cfg.RSIOverbought && shortMA < longMA

	panicBuy := cfg.EnablePanicBuy && evaluatePanicBuy(highs, closes, volumes, rsiCurrent, cfg)

	buySignal := panicBuy
	if !buySignal {
		buySignal = evaluateMomentum(shortMA, longMA, lastClose, ma20, rsiCurrent, rsiPrevious, volumes, cfg)
	}

	switch {
	case sellSignal:
		// Ties between Buy and Sell conditions favor Sell.
		return Sell, "momentum exit"
	case panicBuy:
		return Buy, "panic buy"
	case buySignal:
		return Buy, "momentum entry"
	default:
		return Hold, "no condition met"
	}
}

func evaluateMomentum(shortMA, longMA, lastClose, ma20, rsiCurrent, rsiPrevious float64, volumes []float64, cfg Config) bool {
	if !(rsiCurrent < cfg.RSIOversold) {
		return false
	}

	met := 0
	if shortMA > longMA {
		met++
	}
	if lastClose > ma20 {
		met++
	}
	if rsiCurrent > rsiPrevious {
		met++
	}
	if spike, blocking := volumeSpike(volumes, cfg.VolumeThreshold); blocking && spike {
		met++
	}
	return met >= 3
}

func evaluatePanicBuy(highs, closes, volumes []float64, rsiCurrent float64, cfg Config) bool {
	if cfg.PanicWindowBars <= 0 || cfg.PanicWindowBars > len(highs) {
		return false
	}
	window := highs[len(highs)-cfg.PanicWindowBars:]
	maxHigh := window[0]
	for _, h := range window {
		if h > maxHigh {
			maxHigh = h
		}
	}
	if maxHigh <= 0 {
		return false
	}
	lastClose := closes[len(closes)-1]
	drop := (maxHigh - lastClose) / maxHigh
	if drop < cfg.PanicPriceDropPct {
		return false
	}
	if !(rsiCurrent < cfg.PanicRSIThreshold) {
		return false
	}

	recent := volumes
	if cfg.PanicWindowBars <= len(volumes) {
		recent = volumes[len(volumes)-cfg.PanicWindowBars:]
	}
	spike, eligible := volumeSpike(recent, cfg.VolumeThreshold)
	if !eligible {
		// All-zero volume blocks panic buy outright, unlike momentum
		// where an all-zero window is neutral.
		return false
	}
	return spike
}

// volumeSpike reports whether the last volume exceeds the mean of the
// recent window scaled by threshold. eligible is false when every volume
// in the window is zero, signaling callers to treat the check as
// undetermined (neutral for momentum, blocking for panic buy).
func volumeSpike(volumes []float64, threshold float64) (spike bool, eligible bool) {
	if len(volumes) == 0 {
		return false, false
	}
	var sum float64
	allZero := true
	for _, v := range volumes {
		sum += v
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return false, false
	}
	mean := sum / float64(len(volumes))
	if mean == 0 {
		return false, false
	}
	last := volumes[len(volumes)-1]
	return last > mean*threshold, true
}

func uniform(candles []candlestore.Candle, tol time.Duration) bool {
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp.Sub(candles[i-1].Timestamp) - barInterval
		if delta < 0 {
			delta = -delta
		}
		if delta > tol {
			return false
		}
	}
	return true
}

func closesOf(candles []candlestore.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highsOf(candles []candlestore.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func volumesOf(candles []candlestore.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
