// Package kalshi implements the exchange collaborator against the Kalshi
// trade API. Requests are signed with RSA-PSS-SHA256 over
// timestamp+method+path and individually rate-limited client-side.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradingagent/internal/domain"
)

// Config holds Kalshi API connection parameters.
type Config struct {
	BaseURL            string
	APIKeyID           string
	PrivateKeyPEM      []byte
	MinRequestInterval time.Duration
}

// Client is the REST client for the Kalshi exchange API. It implements
// domain.ExchangeClient.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	logger     *slog.Logger

	// Coarse client-side rate limit: at most one request per interval.
	rateMu      sync.Mutex
	minInterval time.Duration
	lastRequest time.Time
}

// NewClient creates a Kalshi client. The private key must be PEM-encoded
// PKCS#8 or PKCS#1 RSA.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKeyID: cfg.APIKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:      logger.With(slog.String("component", "kalshi")),
		minInterval: cfg.MinRequestInterval,
	}
	if c.minInterval <= 0 {
		c.minInterval = 100 * time.Millisecond
	}
	if len(cfg.PrivateKeyPEM) > 0 {
		if err := c.setPrivateKey(cfg.PrivateKeyPEM); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) setPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarkets lists markets matching the filter.
func (c *Client) GetMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	params := url.Values{}
	if filter.SeriesTicker != "" {
		params.Set("series_ticker", filter.SeriesTicker)
	}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/markets"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []kalshiMarket `json:"markets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		markets = append(markets, toDomainMarket(m))
	}
	return markets, nil
}

// GetMarket returns a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	path := "/markets/" + url.PathEscape(ticker)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market kalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return toDomainMarket(resp.Market), nil
}

// GetOrderbook returns the resting bids for both sides of a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (domain.Orderbook, error) {
	path := "/markets/" + url.PathEscape(ticker) + "/orderbook"

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook kalshiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Orderbook{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	return domain.Orderbook{
		Ticker: ticker,
		Yes:    toPriceLevels(resp.Orderbook.Yes),
		No:     toPriceLevels(resp.Orderbook.No),
	}, nil
}

// PlaceOrder submits a limit order. Orders the exchange cancels immediately
// are reported as closed-market failures so callers can retry the next
// window.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	order := kalshiOrder{
		Ticker:        req.Ticker,
		Action:        "buy",
		Side:          strings.ToLower(string(req.Side)),
		Type:          "limit",
		Count:         req.Contracts,
		ClientOrderID: req.ClientOrderID,
	}
	price := req.PriceCents
	if req.Side == domain.SideYes {
		order.YesPrice = &price
	} else {
		order.NoPrice = &price
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp kalshiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	if resp.Order.Status == "canceled" {
		return domain.OrderResult{}, fmt.Errorf("kalshi: order immediately cancelled: %w", domain.ErrMarketClosed)
	}

	return domain.OrderResult{
		OrderID: resp.Order.OrderID,
		Status:  resp.Order.Status,
	}, nil
}

// GetPositions returns the exchange's view of open positions.
func (c *Client) GetPositions(ctx context.Context) ([]domain.PositionRef, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get positions: %w", err)
	}

	var resp struct {
		MarketPositions []kalshiPosition `json:"market_positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode positions: %w", err)
	}

	refs := make([]domain.PositionRef, 0, len(resp.MarketPositions))
	for _, p := range resp.MarketPositions {
		ref := domain.PositionRef{Ticker: p.Ticker}
		if p.Position >= 0 {
			ref.Contracts = p.Position
			ref.Side = domain.SideYes
		} else {
			ref.Contracts = -p.Position
			ref.Side = domain.SideNo
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// GetBalance returns the account balance.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp kalshiBalance
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: decode balance: %w", err)
	}
	return domain.Balance{BalanceCents: resp.Balance}, nil
}

// GetSettlement derives a market's settlement status from its current state.
// A settlement is only reported once the exchange has published a result.
func (c *Client) GetSettlement(ctx context.Context, ticker string) (domain.Settlement, error) {
	market, err := c.GetMarket(ctx, ticker)
	if err != nil {
		return domain.Settlement{}, err
	}

	switch {
	case market.Result == "yes":
		return domain.Settlement{IsSettled: true, SettlementPrice: 100, Result: "yes"}, nil
	case market.Result == "no":
		return domain.Settlement{IsSettled: true, SettlementPrice: 0, Result: "no"}, nil
	case market.Status == "finalized" || market.Status == "determined" || market.Status == "closed":
		return domain.Settlement{IsFinalized: true}, nil
	default:
		return domain.Settlement{}, nil
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// waitRateLimit enforces the client-side minimum interval between requests.
func (c *Client) waitRateLimit(ctx context.Context) error {
	c.rateMu.Lock()
	wait := c.minInterval - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.rateMu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// doSignedRequest builds, signs, sends, and reads an HTTP request.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
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

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds the KALSHI-ACCESS-* authentication headers. The signed
// message is timestamp + method + path.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx responses onto the domain error taxonomy so the
// retry queue can distinguish transient from permanent failures.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr kalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.Message
	if detail == "" {
		detail = string(body)
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s (%s): %w", detail, apiErr.Code, domain.ErrMarketNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s (%s): %w", detail, apiErr.Code, domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s (%s): %w", detail, apiErr.Code, domain.ErrRateLimited)
	case http.StatusBadRequest:
		lower := strings.ToLower(apiErr.Code + " " + apiErr.Message)
		switch {
		case strings.Contains(lower, "market_closed"), strings.Contains(lower, "not open"), strings.Contains(lower, "market is closed"):
			return fmt.Errorf("%s (%s): %w", detail, apiErr.Code, domain.ErrMarketClosed)
		case strings.Contains(lower, "insufficient"):
			return fmt.Errorf("%s (%s): %w", detail, apiErr.Code, domain.ErrInsufficientBalance)
		default:
			return fmt.Errorf("%s (%s): %w", detail, apiErr.Code, domain.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, detail, apiErr.Code)
	}
}

func toDomainMarket(m kalshiMarket) domain.Market {
	closeTime, _ := time.Parse(time.RFC3339, m.CloseTime)
	return domain.Market{
		Ticker:        m.Ticker,
		EventTicker:   m.EventTicker,
		Title:         m.Title,
		Status:        m.Status,
		YesBid:        m.YesBid,
		YesAsk:        m.YesAsk,
		NoBid:         m.NoBid,
		NoAsk:         m.NoAsk,
		LastPrice:     m.LastPrice,
		Volume:        m.Volume,
		Result:        m.Result,
		CloseTime:     closeTime,
		CanCloseEarly: m.CanCloseEarly,
	}
}

func toPriceLevels(levels []kalshiPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lv := range levels {
		out = append(out, domain.PriceLevel{PriceCents: lv[0], Count: lv[1]})
	}
	return out
}
