// Package feed streams competitor fill events over WebSocket and delivers
// them as parsed events on a channel, decoupling the transport from the
// strategy consuming them.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 30 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// reconnectDelay is the base backoff after a dropped connection.
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// CompetitorFill is one observed fill by a tracked competitor.
type CompetitorFill struct {
	Competitor string    `json:"competitor"`
	Market     string    `json:"market"` // selector, resolved to a ticker downstream
	Outcome    string    `json:"outcome"`
	Side       string    `json:"side"`
	PriceCents int       `json:"price_cents"`
	Size       float64   `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
}

// CompetitorFeed maintains a WebSocket subscription to a competitor fill
// stream and pushes parsed events onto Events. The feed owns reconnection;
// consumers only read the channel and honor context cancellation.
type CompetitorFeed struct {
	wsURL       string
	competitors []string
	events      chan CompetitorFill
	logger      *slog.Logger
}

// NewCompetitorFeed creates a feed tracking the given competitor accounts.
func NewCompetitorFeed(wsURL string, competitors []string, logger *slog.Logger) *CompetitorFeed {
	return &CompetitorFeed{
		wsURL:       wsURL,
		competitors: competitors,
		events:      make(chan CompetitorFill, 256),
		logger:      logger.With(slog.String("component", "competitor_feed")),
	}
}

// Events returns the channel fills are delivered on. It is closed when Run
// returns.
func (f *CompetitorFeed) Events() <-chan CompetitorFill {
	return f.events
}

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff on failure.
func (f *CompetitorFeed) Run(ctx context.Context) error {
	defer close(f.events)

	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("competitor feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials, subscribes, and pumps messages until the connection
// drops or ctx is cancelled.
func (f *CompetitorFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := map[string]any{
		"type":  "subscribe",
		"users": f.competitors,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	f.logger.Info("competitor feed subscribed",
		slog.Int("competitors", len(f.competitors)),
	)

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		f.handleMessage(ctx, raw)
	}
}

func (f *CompetitorFeed) handleMessage(ctx context.Context, raw []byte) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		f.logger.Debug("unparseable feed message", slog.String("error", err.Error()))
		return
	}
	if envelope.Type != "fill" {
		return
	}

	var fill CompetitorFill
	if err := json.Unmarshal(envelope.Data, &fill); err != nil {
		f.logger.Debug("unparseable fill payload", slog.String("error", err.Error()))
		return
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = time.Now().UTC()
	}

	select {
	case f.events <- fill:
	case <-ctx.Done():
	default:
		// Consumer is behind; dropping the oldest semantics would need a
		// ring buffer, so drop the newest and count on the next fill.
		f.logger.Warn("fill channel full, dropping event",
			slog.String("competitor", fill.Competitor),
		)
	}
}
