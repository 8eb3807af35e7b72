package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a SignalStream backed by an aggregator WebSocket feed.
// Frames that do not parse as signals are skipped; the bus downstream handles
// dedup and rate ceilings, so the client only normalizes.
type Client struct {
	apiKey         string
	websocketURL   string
	sources        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new aggregator SignalStream.
func New(apiKey, websocketURL string, sources []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) drepo.SignalStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		sources:        sources,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.With("feed"),
	}
}

// Connect establishes the WebSocket connection and subscribes to the
// configured sources.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("feed connected")
	return c.subscribe(conn)
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	for _, s := range c.sources {
		msg := map[string]string{"type": "subscribe", "source": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.log.Debug("subscribed", logger.String("source", s))
	}
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

type wireSignal struct {
	Source     string  `json:"source"`
	Symbol     string  `json:"symbol"`
	Stage      string  `json:"stage"`
	Kind       string  `json:"kind"`
	Strength   float64 `json:"strength"`
	Ts         int64   `json:"ts"` // ms
	PayloadRef string  `json:"payload_ref"`
}

type wireFrame struct {
	Type string       `json:"type"`
	Data []wireSignal `json:"data"`
}

// Read streams normalized signals and errors. A read error terminates both
// channels; the caller reconnects. Each call pins the connection current at
// call time, and the ping loop lives exactly as long as the read loop.
func (c *Client) Read(ctx context.Context) (<-chan *models.Signal, <-chan error) {
	signals := make(chan *models.Signal, 1024)
	errs := make(chan error, 1)
	conn := c.current()
	done := make(chan struct{})

	if conn == nil {
		errs <- fmt.Errorf("feed conn nil")
		close(signals)
		close(errs)
		return signals, errs
	}

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	// read loop
	go func() {
		defer close(done)
		defer close(signals)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m wireFrame
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-signal frames
					continue
				}
				if m.Type != "signal" {
					continue
				}
				for _, d := range m.Data {
					sig := &models.Signal{
						Source:     d.Source,
						Symbol:     d.Symbol,
						Stage:      models.Stage(d.Stage),
						Kind:       models.SignalKind(d.Kind),
						Strength:   d.Strength,
						Timestamp:  time.Unix(0, d.Ts*int64(time.Millisecond)).UTC(),
						PayloadRef: d.PayloadRef,
					}
					if !sig.Stage.Valid() {
						continue
					}
					select {
					case signals <- sig:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return signals, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
