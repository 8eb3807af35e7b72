package broker

import (
	"context"
	"fmt"

	domsvc "ListingRadar/internal/domain/service"
	pkghttp "ListingRadar/pkg/http"
)

// Client submits abstract order intents to the execution venue's HTTP API.
// The idempotency key rides in a header so a retried submit lands on the
// venue's side of the dedup.
type Client struct {
	baseURL string
	http    *pkghttp.Client
}

func New(baseURL string, http *pkghttp.Client) *Client {
	return &Client{baseURL: baseURL, http: http}
}

type orderResponse struct {
	OrderID    string  `json:"order_id"`
	Price      float64 `json:"price"`
	FilledSize float64 `json:"filled_size"`
	Status     string  `json:"status"` // "filled" or "partial"
}

func (c *Client) Submit(ctx context.Context, intent domsvc.OrderIntent) (domsvc.Fill, error) {
	var out orderResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     c.baseURL + "/v1/orders",
		Headers: map[string]string{"Idempotency-Key": intent.IdempotencyKey},
		Body: map[string]any{
			"symbol": intent.Symbol,
			"stage":  string(intent.Stage),
			"side":   intent.Side,
			"size":   intent.Size,
		},
	}, &out)
	if err != nil {
		return domsvc.Fill{}, fmt.Errorf("submit order: %w", err)
	}
	return domsvc.Fill{
		OrderID:    out.OrderID,
		Price:      out.Price,
		FilledSize: out.FilledSize,
		Partial:    out.Status == "partial",
	}, nil
}

func (c *Client) Cancel(ctx context.Context, orderID string) error {
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodDelete,
		URL:    c.baseURL + "/v1/orders/" + orderID,
	}, nil)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

var _ domsvc.Execution = (*Client)(nil)
