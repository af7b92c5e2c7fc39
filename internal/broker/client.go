// Package broker is the REST client for the trading API: quotes, option
// chain snapshots, and order placement. It mirrors the broker's route
// layout and header scheme; auth token generation lives in internal/auth.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oibreakout/internal/model"
)

const defaultRoot = "https://api-t1.fyers.in"

var routes = map[string]string{
	"data.quotes":  "/data/quotes",
	"data.chain":   "/data/options-chain-v3",
	"orders.place": "/api/v3/orders/sync",
	"orders.exit":  "/api/v3/positions",
}

// ErrAPIStatus is returned when the API answers with a non-ok status body.
var ErrAPIStatus = errors.New("broker: api error")

// Config configures the REST client.
type Config struct {
	ClientID    string
	AccessToken string
	RootURL     string        // default: https://api-t1.fyers.in
	Timeout     time.Duration // default: 7s
}

// Client is the authenticated REST client. Safe for concurrent use.
type Client struct {
	clientID    string
	accessToken string
	rootURL     string
	httpClient  *http.Client
}

// NewClient builds a Client with config defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		clientID:    cfg.ClientID,
		accessToken: cfg.AccessToken,
		rootURL:     strings.TrimRight(cfg.RootURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetAccessToken swaps in a fresh token after a re-login.
func (c *Client) SetAccessToken(token string) { c.accessToken = token }

func (c *Client) buildURL(route string) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("broker: unknown route %s", route)
	}
	return c.rootURL + uri, nil
}

// apiEnvelope is the common response wrapper: s is "ok" or "error".
type apiEnvelope struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, route string, query url.Values, payload any, out any) error {
	reqURL, err := c.buildURL(route)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.clientID+":"+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("broker: parse response (%d): %w", resp.StatusCode, err)
	}
	if env.S != "ok" {
		return fmt.Errorf("%w: %s %s: code=%d %s", ErrAPIStatus, method, route, env.Code, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("broker: decode %s: %w", route, err)
		}
	}
	return nil
}

// Quotes fetches last traded prices for the given symbols.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	var res struct {
		D []struct {
			N string `json:"n"`
			V struct {
				LP float64 `json:"lp"`
			} `json:"v"`
		} `json:"d"`
	}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if err := c.doRequest(ctx, http.MethodGet, "data.quotes", q, nil, &res); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(res.D))
	for _, d := range res.D {
		out[d.N] = d.V.LP
	}
	return out, nil
}

// LTP fetches a single symbol's last traded price. The second return is
// false when the symbol was absent from the quote response.
func (c *Client) LTP(ctx context.Context, symbol string) (float64, bool) {
	quotes, err := c.Quotes(ctx, []string{symbol})
	if err != nil {
		log.Printf("[broker] quote fallback for %s failed: %v", symbol, err)
		return 0, false
	}
	p, ok := quotes[symbol]
	return p, ok && p > 0
}

// SpotPrice returns the underlying index level.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	quotes, err := c.Quotes(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	p, ok := quotes[symbol]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("broker: no spot price for %s", symbol)
	}
	return p, nil
}

// OptionChain fetches the nearest-expiry chain for the underlying.
func (c *Client) OptionChain(ctx context.Context, underlying string) ([]model.OptionRow, error) {
	var res struct {
		Data struct {
			OptionsChain []struct {
				Symbol      string  `json:"symbol"`
				StrikePrice float64 `json:"strike_price"`
				OptionType  string  `json:"option_type"`
				LTP         float64 `json:"ltp"`
				OI          int64   `json:"oi"`
			} `json:"optionsChain"`
		} `json:"data"`
	}
	q := url.Values{"symbol": {underlying}, "strikecount": {"20"}}
	if err := c.doRequest(ctx, http.MethodGet, "data.chain", q, nil, &res); err != nil {
		return nil, err
	}
	rows := make([]model.OptionRow, 0, len(res.Data.OptionsChain))
	for _, r := range res.Data.OptionsChain {
		rows = append(rows, model.OptionRow{
			Symbol:       r.Symbol,
			Strike:       r.StrikePrice,
			OptionType:   r.OptionType,
			LastPrice:    r.LTP,
			OpenInterest: r.OI,
		})
	}
	return rows, nil
}

// orderRequest is the order placement payload. Type 2 is a market order,
// type 3 a stop (trigger) order.
type orderRequest struct {
	Symbol       string  `json:"symbol"`
	Qty          int64   `json:"qty"`
	Type         int     `json:"type"`
	Side         int     `json:"side"`
	ProductType  string  `json:"productType"`
	LimitPrice   float64 `json:"limitPrice"`
	StopPrice    float64 `json:"stopPrice"`
	Validity     string  `json:"validity"`
	OfflineOrder bool    `json:"offlineOrder"`
	OrderTag     string  `json:"orderTag,omitempty"`
}

// PlaceMarketOrder submits an immediate market order and returns the
// broker order id.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, qty int64, tag string) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	req := orderRequest{
		Symbol:      symbol,
		Qty:         qty,
		Type:        2,
		Side:        int(side),
		ProductType: "INTRADAY",
		Validity:    "DAY",
		OrderTag:    tag,
	}
	if err := c.doRequest(ctx, http.MethodPost, "orders.place", nil, req, &res); err != nil {
		return "", err
	}
	log.Printf("[broker] market order placed: %s %s qty=%d id=%s", side, symbol, qty, res.ID)
	return res.ID, nil
}

// PlaceTriggerOrder submits a stop order for a trigger registered in the
// order book. Satisfies the order book's live-placement interface.
func (c *Client) PlaceTriggerOrder(o model.TriggerOrder) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := orderRequest{
		Symbol:      o.Symbol,
		Qty:         o.Qty,
		Type:        3,
		Side:        int(o.Side),
		ProductType: o.ProductType,
		StopPrice:   o.TriggerPrice,
		LimitPrice:  o.LimitPrice,
		Validity:    "DAY",
		OrderTag:    o.Tag,
	}
	return c.doRequest(ctx, http.MethodPost, "orders.place", nil, req, nil)
}

// ExitPosition flattens the open position for the symbol at market.
func (c *Client) ExitPosition(ctx context.Context, symbol string) error {
	payload := map[string]any{"id": symbol + "-INTRADAY"}
	return c.doRequest(ctx, http.MethodDelete, "orders.exit", nil, payload, nil)
}
