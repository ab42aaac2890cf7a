package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmoura/cryptopilot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// TickHandler receives every parsed tick from the stream.
type TickHandler = func(domain.Tick)

// StreamClient connects to the combined ticker stream. One call to Run is
// one connection attempt: it blocks until the connection drops or the
// context is cancelled, and never reconnects on its own. The owning feed
// decides when and whether to retry.
type StreamClient struct {
	wsURL  string
	logger *slog.Logger
}

// NewStreamClient creates a client for the given combined-stream root,
// e.g. "wss://stream.binance.com:9443".
func NewStreamClient(wsURL string, logger *slog.Logger) *StreamClient {
	return &StreamClient{
		wsURL:  strings.TrimRight(wsURL, "/"),
		logger: logger.With(slog.String("component", "binance_ws")),
	}
}

// Run dials the combined stream for the given pairs and delivers every
// parsed tick to onTick. Malformed messages are logged and dropped without
// killing the read loop. Returns nil only on context cancellation.
func (c *StreamClient) Run(ctx context.Context, pairs []string, onTick TickHandler) error {
	if len(pairs) == 0 {
		return fmt.Errorf("binance/ws: no pairs to stream")
	}

	streams := make([]string, 0, len(pairs)*len(subscribedChannels))
	symbols := make(map[string]string, len(pairs))
	for _, p := range pairs {
		for _, ch := range subscribedChannels {
			streams = append(streams, streamName(p, ch))
		}
		symbols[exchangeSymbol(p)] = p
	}
	endpoint := c.wsURL + "/stream?streams=" + strings.Join(streams, "/")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w: %v", domain.ErrConnectivity, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			conn.Close()
		case <-done:
		}
	}()

	go c.pingLoop(conn, done)

	c.logger.Info("stream connected", slog.Int("pairs", len(pairs)))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("binance/ws: read: %w: %v", domain.ErrConnectivity, err)
		}
		c.handleMessage(message, symbols, onTick)
	}
}

func (c *StreamClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one combined-stream message and routes it by
// channel. A failure for one symbol or channel never affects the others.
func (c *StreamClient) handleMessage(raw []byte, symbols map[string]string, onTick TickHandler) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Debug("dropping malformed message", slog.String("error", err.Error()))
		return
	}

	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		var msg tickerMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.EventType != "24hrTicker" {
			c.logger.Debug("dropping malformed ticker", slog.String("stream", env.Stream))
			return
		}
		if tick, ok := msg.toDomainTick(symbols); ok {
			onTick(tick)
		} else {
			c.logger.Debug("dropping unparseable ticker", slog.String("symbol", msg.Symbol))
		}
	case strings.HasSuffix(env.Stream, "@trade"):
		var msg tradeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.EventType != "trade" {
			c.logger.Debug("dropping malformed trade", slog.String("stream", env.Stream))
			return
		}
		if tick, ok := msg.toDomainTick(symbols); ok {
			onTick(tick)
		} else {
			c.logger.Debug("dropping unparseable trade", slog.String("symbol", msg.Symbol))
		}
	default:
		// Depth snapshots share the socket but have no order book consumer;
		// they are dropped after the envelope parse.
	}
}
