// Package polymarket holds the REST and WebSocket clients for the Polymarket
// Gamma (market discovery) and CLOB (pricing and order) APIs.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantfold/updownbot/internal/domain"
)

// maxPeriodFallbacks is how many previous periods discovery walks back when
// the current period's event has not been published yet.
const maxPeriodFallbacks = 3

// GammaClient is the REST client for the Polymarket Gamma API, used for
// up/down market discovery.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FindMarket discovers the up/down market for the asset's current trading
// period. Period events are published under a deterministic slug,
// "{asset}-updown-{window}m-{periodStart}". Gamma can lag a fresh boundary,
// so discovery falls back through a few previous periods before giving up.
func (g *GammaClient) FindMarket(ctx context.Context, asset string, windowMinutes int) (domain.Market, error) {
	windowSecs := int64(windowMinutes) * 60
	period := time.Now().Unix() / windowSecs * windowSecs
	label := fmt.Sprintf("%s-%dm", strings.ToUpper(asset), windowMinutes)

	var lastErr error
	for i := 0; i <= maxPeriodFallbacks; i++ {
		slug := fmt.Sprintf("%s-updown-%dm-%d", strings.ToLower(asset), windowMinutes, period-int64(i)*windowSecs)
		market, err := g.marketBySlug(ctx, slug, label)
		if err != nil {
			lastErr = err
			continue
		}
		if market.Closed || !market.Active {
			lastErr = fmt.Errorf("polymarket/gamma: market %s no longer active", slug)
			continue
		}
		return market, nil
	}
	return domain.Market{}, fmt.Errorf("polymarket/gamma: find %s market: %w", asset, lastErr)
}

// MarketByConditionID fetches a single market by its condition ID. Used when
// the configuration pins condition IDs instead of relying on slug discovery.
func (g *GammaClient) MarketByConditionID(ctx context.Context, conditionID, label string) (domain.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market %s: %w", conditionID, domain.ErrNotFound)
	}

	market, err := markets[0].ToDomainMarket(label)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: map market %s: %w", conditionID, err)
	}
	return market, nil
}

// marketBySlug fetches the period event and extracts its single market.
func (g *GammaClient) marketBySlug(ctx context.Context, slug, label string) (domain.Market, error) {
	path := "/events/slug/" + url.PathEscape(slug)

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.Market{}, fmt.Errorf("get event by slug %s: %w", slug, err)
	}

	var event APIEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.Market{}, fmt.Errorf("decode event: %w", err)
	}
	if len(event.Markets) == 0 {
		return domain.Market{}, fmt.Errorf("event %s: %w", slug, domain.ErrNotFound)
	}

	market, err := event.Markets[0].ToDomainMarket(label)
	if err != nil {
		return domain.Market{}, fmt.Errorf("map market %s: %w", slug, err)
	}
	return market, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
