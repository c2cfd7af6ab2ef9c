package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DiscoveryProvider is the C11 dependency: returns a ranked trending list.
type DiscoveryProvider interface {
	FetchTrending(ctx context.Context, limit int) ([]DiscoveryCandidate, error)
}

type trendingResponse struct {
	Pairs []trendingPair `json:"pairs"`
}

type trendingPair struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
	} `json:"baseToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	FDV      float64 `json:"fdv"`
	PriceUSD string  `json:"priceUsd"`
}

// HTTPDiscoveryProvider queries a DexScreener-shaped trending endpoint,
// grounded on the teacher pack's DEX-aggregator search response shape.
type HTTPDiscoveryProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPDiscoveryProvider(baseURL string, logger *zap.Logger) *HTTPDiscoveryProvider {
	return &HTTPDiscoveryProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.Named("providers.discovery"),
	}
}

func (p *HTTPDiscoveryProvider) FetchTrending(ctx context.Context, limit int) ([]DiscoveryCandidate, error) {
	url := fmt.Sprintf("%s/trending?limit=%d", p.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("providers: build trending request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}

	var body trendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("providers: decode trending: %w", err)
	}

	out := make([]DiscoveryCandidate, 0, len(body.Pairs))
	for i, pair := range body.Pairs {
		price, err := strconv.ParseFloat(pair.PriceUSD, 64)
		if err != nil {
			p.logger.Warn("skipping candidate with unparseable price", zap.String("address", pair.BaseToken.Address))
			continue
		}
		out = append(out, DiscoveryCandidate{
			Address:      pair.BaseToken.Address,
			Symbol:       pair.BaseToken.Symbol,
			Name:         pair.BaseToken.Name,
			LiquidityUSD: pair.Liquidity.USD,
			Volume24hUSD: pair.Volume.H24,
			FDVUSD:       pair.FDV,
			PriceUSD:     price,
			Rank:         i + 1,
		})
	}
	return out, nil
}
