package api

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SimplyPrint/lpa-bridge/internal/bridge"
	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

const (
	wsReadLimit    = 512 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteWait    = 10 * time.Second
	wsSendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local use
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string          `json:"type"`              // Message type
	ID      string          `json:"id,omitempty"`      // Request ID for request/response matching
	Payload json.RawMessage `json:"payload,omitempty"` // Message payload
	Error   string          `json:"error,omitempty"`   // Error message if any
}

// callPayload is the payload of a "call" message. Query is a raw
// "k=v&k2=v2" string; Args are appended after it, so Query wins on
// duplicate keys.
type callPayload struct {
	Endpoint string            `json:"endpoint"`
	Query    string            `json:"query,omitempty"`
	Args     map[string]string `json:"args,omitempty"`
	Columns  []string          `json:"columns,omitempty"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	// ctx is cancelled when the client goes away; it bounds the wait of
	// in-flight calls for the exclusive section.
	ctx    context.Context
	cancel context.CancelFunc
}

func newWSClient(hub *WSHub, conn *websocket.Conn) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		hub:    hub,
		ctx:    ctx,
		cancel: cancel,
	}
}

// WSHub manages all WebSocket connections
type WSHub struct {
	server     *Server
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	quit       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(server *Server) *WSHub {
	return &WSHub{
		server:     server,
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, wsSendBuffer),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, disconnecting
// every client.
func (h *WSHub) Run(ctx context.Context) {
	// Re-panic after logging since hub crash is fatal
	defer logging.RecoverAndLog("WebSocket hub", true)
	defer func() {
		close(h.quit)
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			client.cancel()
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.cancel()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				// slow clients miss broadcasts rather than stall the hub
				client.offer(message)
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastProgress queues a download_progress message for every client.
// The event is dropped when the hub is backed up.
func (h *WSHub) BroadcastProgress(ev lpa.DownloadEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	message, err := json.Marshal(WSMessage{Type: "download_progress", Payload: payload})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message:
	default:
		logging.Debug(logging.CatWebSocket, "Dropped progress broadcast", map[string]any{
			"state": ev.State,
		})
	}
}

// ServeHTTP upgrades the connection and attaches a client to the hub.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error(logging.CatWebSocket, "WebSocket upgrade failed", map[string]any{
			"error":      err.Error(),
			"remoteAddr": r.RemoteAddr,
		})
		return
	}

	client := newWSClient(h, conn)
	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	logging.Info(logging.CatWebSocket, "Client connected", map[string]any{
		"remoteAddr": r.RemoteAddr,
	})

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	// Recover from panics (runs last due to LIFO)
	defer logging.RecoverAndLog("WebSocket readPump", false)
	// Cleanup (runs first)
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(logging.CatWebSocket, "WebSocket unexpected close", map[string]any{
					"error": err.Error(),
				})
			} else {
				logging.Debug(logging.CatWebSocket, "Client disconnected", nil)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("", "invalid message format")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	// Recover from panics (runs last due to LIFO)
	defer logging.RecoverAndLog("WebSocket writePump", false)
	// Cleanup (runs first)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue waits for buffer space unless the client is gone.
func (c *WSClient) enqueue(message []byte) {
	select {
	case c.send <- message:
	case <-c.ctx.Done():
	}
}

// offer queues message only if there is room.
func (c *WSClient) offer(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

func (c *WSClient) handleMessage(msg WSMessage) {
	logging.Debug(logging.CatWebSocket, "Received message", map[string]any{
		"type": msg.Type,
		"id":   msg.ID,
	})

	switch msg.Type {
	case "call":
		// calls may wait on the card for minutes; keep reading pongs meanwhile
		go c.handleCall(msg.ID, msg.Payload)
	case "version":
		c.sendResponse(msg.ID, "version", c.hub.server.versionInfo())
	case "health":
		c.sendResponse(msg.ID, "health", c.hub.server.healthInfo(c.ctx))
	default:
		logging.Warn(logging.CatWebSocket, "Unknown message type", map[string]any{
			"type": msg.Type,
		})
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) handleCall(id string, payload json.RawMessage) {
	defer logging.RecoverAndLog("WebSocket call", false)

	var p callPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError(id, "invalid payload")
		return
	}

	raw := p.Query
	if len(p.Args) > 0 {
		values := url.Values{}
		for k, v := range p.Args {
			values.Set(k, v)
		}
		raw = joinQuery(raw, values.Encode())
	}

	req := bridge.Request{
		Endpoint: p.Endpoint,
		Args:     bridge.ParseQuery(raw).Without("columns"),
	}
	columns := append(p.Columns, parseColumns(p.Query)...)

	requestID := id
	if requestID == "" {
		requestID = uuid.NewString()
	}
	result := c.hub.server.dispatcher.Dispatch(c.ctx, req, columns)

	logData := map[string]any{
		"requestId": requestID,
		"endpoint":  req.Endpoint,
	}
	if msg, failed := result.ErrorMessage(); failed {
		logData["error"] = msg
	}
	logging.Debug(logging.CatWebSocket, "LPA call", logData)

	c.sendResponse(id, "result", result)
}

func (c *WSClient) sendResponse(id string, msgType string, payload any) {
	payloadBytes, _ := json.Marshal(payload)
	responseBytes, _ := json.Marshal(WSMessage{
		Type:    msgType,
		ID:      id,
		Payload: payloadBytes,
	})
	c.enqueue(responseBytes)
}

func (c *WSClient) sendError(id string, errMsg string) {
	responseBytes, _ := json.Marshal(WSMessage{
		Type:  "error",
		ID:    id,
		Error: errMsg,
	})
	c.enqueue(responseBytes)
}
