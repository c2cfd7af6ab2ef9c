package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// QuoteProvider is the C4 dependency: given an address, returns the
// current price and 24h volume.
type QuoteProvider interface {
	GetQuote(ctx context.Context, address string) (Quote, error)
}

type quoteResponse struct {
	PriceUSD     string `json:"priceUsd"`
	Volume24hUSD string `json:"volume24hUsd"`
}

// HTTPQuoteProvider is a bounded-timeout REST client, the same shape as
// the teacher's exchange clients generalized from order-book endpoints
// to a single-quote endpoint.
type HTTPQuoteProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPQuoteProvider(baseURL string, logger *zap.Logger) *HTTPQuoteProvider {
	return &HTTPQuoteProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("providers.quote"),
	}
}

func (p *HTTPQuoteProvider) GetQuote(ctx context.Context, address string) (Quote, error) {
	url := fmt.Sprintf("%s/quote/%s", p.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("providers: build quote request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return Quote{}, ErrRateLimited
	case http.StatusNotFound:
		return Quote{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("providers: decode quote: %w", err)
	}

	price, volume, err := parsePriceVolume(body.PriceUSD, body.Volume24hUSD)
	if err != nil {
		return Quote{}, fmt.Errorf("providers: parse quote: %w", err)
	}

	return Quote{Price: price, Volume24h: volume, Timestamp: time.Now().UTC()}, nil
}
