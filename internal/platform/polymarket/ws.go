package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/updownbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookQuote is the top of book extracted from a "book" frame.
type BookQuote struct {
	TokenID    string
	AskTicks   domain.Ticks
	BidTicks   domain.Ticks
	ObservedAt time.Time
}

// BookHandler is called for every book snapshot with a usable best ask.
type BookHandler func(BookQuote)

// WSClient streams orderbook snapshots from the CLOB market channel. It
// manages the connection lifecycle, subscription restore, keep-alives and
// reconnection with exponential backoff.
type WSClient struct {
	wsURL string

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	assets []string

	handlerMu sync.RWMutex
	handlers  []BookHandler

	done chan struct{}
}

// NewWSClient creates a client for the market channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// OnBook registers a handler invoked for every book snapshot.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Connect establishes the connection, restores any prior subscription and
// starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.assets) > 0 {
		if err := w.sendCommand(WSCommand{Type: "subscribe", Assets: w.assets}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}
	return nil
}

// Subscribe replaces the current asset subscription with the given token
// IDs. On rotation the caller resubscribes with the new period's tokens.
func (w *WSClient) Subscribe(assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	if len(w.assets) > 0 {
		if err := w.sendCommand(WSCommand{Type: "unsubscribe", Assets: w.assets}); err != nil {
			return fmt.Errorf("polymarket/ws: unsubscribe: %w", err)
		}
	}
	if err := w.sendCommand(WSCommand{Type: "subscribe", Assets: assetIDs}); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	w.assets = append([]string(nil), assetIDs...)
	return nil
}

// Close shuts down the connection and stops the loops.
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

// sendCommand sends a JSON command. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop() {
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
			return // the new connection starts its own readLoop
		}

		w.handleMessage(message)
	}
}

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

// handleMessage parses a frame and fans out book quotes. The market channel
// can deliver a single object or a batch array; both are handled.
func (w *WSClient) handleMessage(raw []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		batch = []json.RawMessage{raw}
	}

	for _, item := range batch {
		var book WSBookMessage
		if err := json.Unmarshal(item, &book); err != nil {
			continue
		}
		if book.EventType != "book" || book.AssetID == "" {
			continue
		}

		quote, ok := bookToQuote(&book)
		if !ok {
			continue
		}

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(quote)
		}
	}
}

// bookToQuote extracts best ask and bid from a book snapshot. Frames without
// an ask are dropped.
func bookToQuote(book *WSBookMessage) (BookQuote, bool) {
	quote := BookQuote{TokenID: book.AssetID}

	for _, lvl := range book.Asks {
		ticks, err := domain.ParseTicks(lvl.Price)
		if err != nil || ticks <= 0 {
			continue
		}
		if quote.AskTicks == 0 || ticks < quote.AskTicks {
			quote.AskTicks = ticks
		}
	}
	for _, lvl := range book.Bids {
		ticks, err := domain.ParseTicks(lvl.Price)
		if err != nil {
			continue
		}
		if ticks > quote.BidTicks {
			quote.BidTicks = ticks
		}
	}
	if quote.AskTicks == 0 {
		return BookQuote{}, false
	}

	if ms, err := strconv.ParseInt(book.Timestamp, 10, 64); err == nil && ms > 0 {
		quote.ObservedAt = time.UnixMilli(ms).UTC()
	} else {
		quote.ObservedAt = time.Now().UTC()
	}
	return quote, true
}

// reconnect re-establishes the connection with exponential backoff. Blocks
// until successful or the client is closed.
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
