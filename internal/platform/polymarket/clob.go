package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/updownbot/internal/crypto"
	"github.com/quantfold/updownbot/internal/domain"
	"github.com/quantfold/updownbot/internal/exec"
)

// ClobClient is the REST client for the Polymarket CLOB API. It serves
// quotes to the pollers and orders to the execution coordinator.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates a CLOB client. signer and hmac may be nil for
// quote-only use (simulation and monitor modes).
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

var (
	_ exec.Venue          = (*ClobClient)(nil)
	_ domain.ResultSource = (*ClobClient)(nil)
)

// BestQuotes fetches the best asks and bids for both sides of the market.
// The two token fetches run concurrently.
func (c *ClobClient) BestQuotes(ctx context.Context, market domain.Market) (domain.Quote, domain.Quote, error) {
	var up, down domain.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := c.tokenQuote(gctx, market.Up.ID)
		up = q
		return err
	})
	g.Go(func() error {
		q, err := c.tokenQuote(gctx, market.Down.ID)
		down = q
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Quote{}, domain.Quote{}, fmt.Errorf("polymarket/clob: quotes for %s: %w", market.Label, err)
	}
	return up, down, nil
}

// tokenQuote reads the best ask and bid for a single token off the /price
// endpoint. A missing bid is tolerated; a missing ask is an error.
func (c *ClobClient) tokenQuote(ctx context.Context, tokenID string) (domain.Quote, error) {
	ask, err := c.price(ctx, tokenID, "BUY")
	if err != nil {
		return domain.Quote{}, err
	}
	bid, err := c.price(ctx, tokenID, "SELL")
	if err != nil {
		bid = 0
	}
	return domain.Quote{
		TokenID:    tokenID,
		AskTicks:   ask,
		BidTicks:   bid,
		ObservedAt: time.Now().UTC(),
	}, nil
}

func (c *ClobClient) price(ctx context.Context, tokenID, side string) (domain.Ticks, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("side", side)

	body, err := c.doRequest(ctx, http.MethodGet, "/price?"+params.Encode(), nil, false)
	if err != nil {
		return 0, fmt.Errorf("get price: %w", err)
	}

	var apiPrice APIPrice
	if err := json.Unmarshal(body, &apiPrice); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	ticks, err := domain.ParseTicks(apiPrice.Price)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", apiPrice.Price, err)
	}
	return ticks, nil
}

// SubmitOrder signs and posts a limit order. Amounts follow the CLOB
// convention: for a BUY the maker amount is the USDC collateral and the
// taker amount the token quantity, both in 1e6 base units; SELL reverses
// them.
func (c *ClobClient) SubmitOrder(ctx context.Context, req exec.OrderRequest) (string, error) {
	if c.signer == nil || c.hmacAuth == nil {
		return "", fmt.Errorf("polymarket/clob: submit order: %w", domain.ErrUnauthorized)
	}
	if req.PriceTicks <= 0 || req.SizeUnits <= 0 {
		return "", fmt.Errorf("polymarket/clob: %w", domain.ErrInvalidOrder)
	}

	collateral := new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(int64(req.PriceTicks)), big.NewInt(req.SizeUnits)),
		big.NewInt(1_000_000),
	)
	quantity := big.NewInt(req.SizeUnits)

	makerAmount, takerAmount := collateral, quantity
	side := 0
	if req.Action == exec.ActionSell {
		makerAmount, takerAmount = quantity, collateral
		side = 1
	}

	address := c.signer.Address().Hex()
	payload := crypto.OrderPayload{
		Salt:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Maker:       address,
		Signer:      address,
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     req.TokenID,
		MakerAmount: makerAmount.String(),
		TakerAmount: takerAmount.String(),
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        side,
	}
	signature, err := c.signer.SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"side":          string(req.Action),
			"feeRateBps":    payload.FeeRateBps,
			"nonce":         payload.Nonce,
			"expiration":    payload.Expiration,
			"signatureType": payload.SignatureType,
			"signature":     signature,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
		},
		"owner":     payload.Maker,
		"orderType": "FOK",
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", body, true)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}
	return result.OrderID, nil
}

// OrderStatus maps the CLOB order record to the coordinator's order states.
func (c *ClobClient) OrderStatus(ctx context.Context, orderID string) (exec.OrderState, error) {
	path := "/order/" + url.PathEscape(orderID)
	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var order APIOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order: %w", err)
	}

	switch order.Status {
	case "matched", "filled":
		return exec.OrderStateFilled, nil
	case "cancelled", "canceled":
		return exec.OrderStateCancelled, nil
	case "live", "open", "delayed":
		return exec.OrderStateOpen, nil
	}

	// Some gateways only report matched size, not a terminal status.
	orig, _ := strconv.ParseFloat(order.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(order.SizeMatched, 64)
	if orig > 0 && matched >= orig {
		return exec.OrderStateFilled, nil
	}
	return exec.OrderStateOpen, nil
}

// MarketResult reports whether a market has resolved and which of its tokens
// won. The markets endpoint is public, so this works without credentials.
func (c *ClobClient) MarketResult(ctx context.Context, conditionID string) (domain.MarketResult, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/markets/"+url.PathEscape(conditionID), nil, false)
	if err != nil {
		return domain.MarketResult{}, fmt.Errorf("polymarket/clob: get market %s: %w", conditionID, err)
	}

	var market APIMarketDetails
	if err := json.Unmarshal(respBody, &market); err != nil {
		return domain.MarketResult{}, fmt.Errorf("polymarket/clob: decode market: %w", err)
	}

	result := domain.MarketResult{
		Closed:  market.Closed,
		Winners: make(map[string]bool, len(market.Tokens)),
	}
	for _, token := range market.Tokens {
		result.Winners[token.TokenID] = token.Winner
	}
	return result, nil
}

// CancelOrder cancels a resting order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}
	respBody, err := c.doRequest(ctx, http.MethodDelete, "/order", body, true)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", result.ErrorMsg)
	}
	return nil
}

// DeriveAPIKey runs the CLOB auth flow: sign a ClobAuth message with the
// wallet key and exchange it for HMAC credentials. On success the client
// signs subsequent requests with the derived key.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrUnauthorized)
	}

	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// doRequest builds, optionally HMAC-signs, sends, and reads a CLOB request.
func (c *ClobClient) doRequest(ctx context.Context, method, path string, body any, authed bool) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.hmacAuth != nil && c.signer != nil {
		headers := c.hmacAuth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
