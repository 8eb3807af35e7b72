package usecase

import (
	"context"

	"ListingRadar/internal/bus"
	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
)

// SignalCollector pumps a connected source feed into the signal bus,
// reconnecting on stream errors.
type SignalCollector struct {
	stream  drepo.SignalStream
	bus     *bus.Bus
	metrics drepo.Metrics
}

func NewSignalCollector(stream drepo.SignalStream, b *bus.Bus, metrics drepo.Metrics) *SignalCollector {
	return &SignalCollector{stream: stream, bus: b, metrics: metrics}
}

// IsConnected returns true if the source feed is connected.
func (c *SignalCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *SignalCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	sigCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, sigCh, errCh)
	return nil
}

func (c *SignalCollector) consume(ctx context.Context, sigCh <-chan *models.Signal, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				if rerr := c.stream.Reconnect(ctx); rerr == nil {
					sigCh, errCh = c.stream.Read(ctx)
				}
			}
		case s := <-sigCh:
			if s == nil {
				continue
			}
			c.bus.Ingest(ctx, s)
		}
	}
}

func (c *SignalCollector) Stop() error { return c.stream.Close() }
