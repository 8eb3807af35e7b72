package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	domsvc "ListingRadar/internal/domain/service"
	pkghttp "ListingRadar/pkg/http"
)

type cached struct {
	price float64
	at    time.Time
}

// Client fetches spot prices over HTTP with a short-lived per-symbol cache,
// so exit ticks across many positions on the same symbol share one fetch.
type Client struct {
	baseURL string
	ttl     time.Duration
	http    *pkghttp.Client

	mu    sync.RWMutex
	cache map[string]cached
}

func New(baseURL string, ttl time.Duration, http *pkghttp.Client) *Client {
	return &Client{
		baseURL: baseURL,
		ttl:     ttl,
		http:    http,
		cache:   make(map[string]cached),
	}
}

func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	c.mu.RLock()
	e, ok := c.cache[symbol]
	c.mu.RUnlock()
	if ok && time.Since(e.at) < c.ttl {
		return e.price, e.at, nil
	}

	var out struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
		Ts     int64   `json:"ts"` // ms
	}
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         c.baseURL + "/v1/price",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &out)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price %s: %w", symbol, err)
	}
	if out.Price <= 0 {
		return 0, time.Time{}, fmt.Errorf("price %s: non-positive quote", symbol)
	}

	at := time.Unix(0, out.Ts*int64(time.Millisecond)).UTC()
	if out.Ts == 0 {
		at = time.Now().UTC()
	}
	c.mu.Lock()
	c.cache[symbol] = cached{price: out.Price, at: at}
	c.mu.Unlock()
	return out.Price, at, nil
}

var _ domsvc.PriceFeed = (*Client)(nil)
