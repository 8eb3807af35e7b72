package service

import (
	"context"
	"time"

	"ListingRadar/internal/domain/models"
)

// Inference is the external model service. Calls carry the caller's timeout;
// failures degrade scoring rather than rejecting the opportunity.
type Inference interface {
	Infer(ctx context.Context, features map[string]float64) (InferenceResult, error)
}

// InferenceResult is the fixed contract of the model service.
type InferenceResult struct {
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
}

// OrderIntent is an abstract buy/sell request keyed for idempotency.
type OrderIntent struct {
	IdempotencyKey string
	Symbol         string
	Stage          models.Stage
	Side           string // "buy" or "sell"
	Size           float64
}

// Fill is the execution collaborator's answer to an intent. Partial fills
// report the filled size; the remainder is not chased.
type Fill struct {
	OrderID    string
	Price      float64
	FilledSize float64
	Partial    bool
}

// Execution submits abstract order intents.
type Execution interface {
	Submit(ctx context.Context, intent OrderIntent) (Fill, error)
	Cancel(ctx context.Context, orderID string) error
}

// PriceFeed returns the current price for a symbol.
type PriceFeed interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}
