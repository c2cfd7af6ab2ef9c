package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HistoricalProvider is the C5 dependency: given an external id, returns
// parallel price and rolling-volume series.
type HistoricalProvider interface {
	FetchSeries(ctx context.Context, externalID string, days int) (HistoricalSeries, error)
}

type historicalResponse struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// HTTPHistoricalProvider is a CoinGecko-shaped market_chart client.
type HTTPHistoricalProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPHistoricalProvider(baseURL string, logger *zap.Logger) *HTTPHistoricalProvider {
	return &HTTPHistoricalProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("providers.historical"),
	}
}

func (p *HTTPHistoricalProvider) FetchSeries(ctx context.Context, externalID string, days int) (HistoricalSeries, error) {
	url := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d", p.baseURL, externalID, days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HistoricalSeries{}, fmt.Errorf("providers: build historical request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return HistoricalSeries{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return HistoricalSeries{}, ErrRateLimited
	case http.StatusNotFound:
		return HistoricalSeries{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return HistoricalSeries{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}

	var body historicalResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return HistoricalSeries{}, fmt.Errorf("providers: decode historical: %w", err)
	}
	if len(body.Prices) == 0 {
		return HistoricalSeries{}, ErrNotFound
	}

	series := HistoricalSeries{
		Prices:  make([]PricePoint, len(body.Prices)),
		Volumes: make([]VolumePoint, len(body.TotalVolumes)),
	}
	for i, p := range body.Prices {
		series.Prices[i] = PricePoint{TimestampMs: int64(p[0]), Price: p[1]}
	}
	for i, v := range body.TotalVolumes {
		series.Volumes[i] = VolumePoint{TimestampMs: int64(v[0]), Volume24h: v[1]}
	}
	return series, nil
}

// coinListEntry is a single row of the one-shot coin-list dump used to
// resolve (symbol, address) -> external id.
type coinListEntry struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Platforms map[string]string `json:"platforms"`
}

// CoinListResolver builds the (symbol,address) -> external_id mapping
// from a one-shot coin-list dump, indexed by on-chain address and by
// symbol, with a native-asset special case per §6.
type CoinListResolver struct {
	mu            sync.RWMutex
	byAddress     map[string]string
	bySymbol      map[string]string
	nativeAddress string
	nativeID      string
}

func NewCoinListResolver(nativeAddress, nativeID string) *CoinListResolver {
	return &CoinListResolver{
		byAddress:     make(map[string]string),
		bySymbol:      make(map[string]string),
		nativeAddress: strings.ToLower(nativeAddress),
		nativeID:      nativeID,
	}
}

// Load fetches and indexes the coin-list dump. Called once at startup.
func (r *CoinListResolver) Load(ctx context.Context, baseURL string, httpClient *http.Client) error {
	url := fmt.Sprintf("%s/coins/list?include_platform=true", baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("providers: build coin-list request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}

	var entries []coinListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("providers: decode coin-list: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		hasAddr := false
		for _, addr := range e.Platforms {
			if addr == "" {
				continue
			}
			hasAddr = true
			r.byAddress[strings.ToLower(addr)] = e.ID
		}
		if !hasAddr {
			continue
		}
		if _, exists := r.bySymbol[strings.ToLower(e.Symbol)]; !exists {
			r.bySymbol[strings.ToLower(e.Symbol)] = e.ID
		}
	}
	return nil
}

// Resolve implements the §4.5 step 1 lookup order: exact address match,
// then native-asset special case, then first symbol match with an
// address mapping.
func (r *CoinListResolver) Resolve(symbol, address string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lowerAddr := strings.ToLower(address)
	if id, ok := r.byAddress[lowerAddr]; ok {
		return id, nil
	}
	if r.nativeAddress != "" && lowerAddr == r.nativeAddress {
		return r.nativeID, nil
	}
	lowerSym := strings.ToLower(symbol)
	if id, ok := r.bySymbol[lowerSym]; ok {
		return id, nil
	}
	return "", ErrNotFound
}
