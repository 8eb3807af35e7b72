package inference

import (
	"context"
	"fmt"

	domsvc "ListingRadar/internal/domain/service"
	pkghttp "ListingRadar/pkg/http"
)

// Client calls the external model service over HTTP. Scoring treats any
// error here as degraded mode, so the client stays thin: no retries, the
// caller's deadline governs.
type Client struct {
	baseURL string
	http    *pkghttp.Client
}

func New(baseURL string, http *pkghttp.Client) *Client {
	return &Client{baseURL: baseURL, http: http}
}

func (c *Client) Infer(ctx context.Context, features map[string]float64) (domsvc.InferenceResult, error) {
	var out domsvc.InferenceResult
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + "/v1/score",
		Body:   map[string]any{"features": features},
	}, &out)
	if err != nil {
		return domsvc.InferenceResult{}, fmt.Errorf("inference: %w", err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return domsvc.InferenceResult{}, fmt.Errorf("inference: probability %f out of range", out.Probability)
	}
	return out, nil
}

var _ domsvc.Inference = (*Client)(nil)
