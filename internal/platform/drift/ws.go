package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 30 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called when an orderbook update arrives over the WebSocket.
type BookHandler func(DriftL2Book)

// WSClient is a WebSocket client for real-time DLOB market data.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Tracked subscriptions for reconnection.
	subscribedMarkets []string

	bookHandlers []BookHandler
	handlerMu    sync.RWMutex

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a DLOB WebSocket client.
//
// wsURL is the endpoint, e.g. "wss://dlob.drift.trade/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("drift/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("drift/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Re-subscribe to any previously tracked markets.
	for _, market := range w.subscribedMarkets {
		if err := w.sendSubscribe(market); err != nil {
			return fmt.Errorf("drift/ws: restore subscription %s: %w", market, err)
		}
	}

	return nil
}

// Subscribe subscribes to orderbook updates for the given perp markets.
func (w *WSClient) Subscribe(ctx context.Context, markets []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("drift/ws: not connected")
	}

	existing := make(map[string]struct{}, len(w.subscribedMarkets))
	for _, m := range w.subscribedMarkets {
		existing[m] = struct{}{}
	}
	for _, market := range markets {
		if err := w.sendSubscribe(market); err != nil {
			return fmt.Errorf("drift/ws: subscribe %s: %w", market, err)
		}
		if _, ok := existing[market]; !ok {
			w.subscribedMarkets = append(w.subscribedMarkets, market)
		}
	}

	return nil
}

// OnBook registers a handler called for every orderbook update.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(market string) error {
	cmd := driftWSSubscribe{
		Type:       "subscribe",
		MarketType: "perp",
		Channel:    "orderbook",
		Market:     market,
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers.
// On disconnect it attempts reconnection.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and routes it. The DLOB server prefixes
// orderbook channels with "orderbook_perp_".
func (w *WSClient) handleMessage(raw []byte) {
	var envelope driftWSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	if !strings.HasPrefix(envelope.Channel, "orderbook") {
		return
	}

	var book DriftL2Book
	if err := json.Unmarshal(envelope.Data, &book); err != nil {
		return
	}

	w.handlerMu.RLock()
	handlers := w.bookHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(book)
	}
}

// reconnect attempts to re-establish the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
