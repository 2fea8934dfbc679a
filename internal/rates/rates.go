// Package rates fetches the ARS/USD quote used to convert dollar card charges.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a buy/sell pair in pesos per dollar.
type Quote struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

// Mid returns the mean of buy and sell.
func (q Quote) Mid() decimal.Decimal {
	return q.Buy.Add(q.Sell).Div(decimal.NewFromInt(2))
}

// Provider returns the current quote for a pair such as "blue".
type Provider interface {
	Quote(ctx context.Context, pair string) (Quote, error)
}

// RateLookupError wraps a failed lookup. Callers degrade to skipping the
// conversion.
type RateLookupError struct {
	Pair string
	Err  error
}

func (e *RateLookupError) Error() string {
	return fmt.Sprintf("rate lookup %s: %v", e.Pair, e.Err)
}

func (e *RateLookupError) Unwrap() error { return e.Err }

// Client queries a dolarapi-compatible endpoint: GET <base>/<pair> returning
// {"compra": <number>, "venta": <number>}.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
}

// NewClient creates a Client with the given per-request timeout and number
// of retries after the first attempt.
func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retries: retries,
	}
}

type quoteResponse struct {
	Buy  decimal.Decimal `json:"compra"`
	Sell decimal.Decimal `json:"venta"`
}

// Quote fetches the quote for pair.
func (c *Client) Quote(ctx context.Context, pair string) (Quote, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		q, err := c.fetch(ctx, pair)
		if err == nil {
			return q, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return Quote{}, &RateLookupError{Pair: pair, Err: lastErr}
}

func (c *Client) fetch(ctx context.Context, pair string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+pair, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decoding quote: %w", err)
	}
	if !body.Buy.IsPositive() || !body.Sell.IsPositive() {
		return Quote{}, fmt.Errorf("quote missing buy/sell")
	}
	return Quote{Buy: body.Buy, Sell: body.Sell}, nil
}

// Static is a Provider with a fixed quote.
type Static Quote

// Quote returns the fixed quote.
func (s Static) Quote(context.Context, string) (Quote, error) {
	return Quote(s), nil
}
