package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	wshandler "github.com/windfall/engapp_service/internal/handler/ws"
	"github.com/windfall/engapp_service/internal/middleware"
	"github.com/windfall/engapp_service/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WebSocketMessage represents a WebSocket message.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client.
type Client struct {
	ID     string
	UserID string
	Hub    *WebSocketHub
	Conn   *websocket.Conn
	Send   chan []byte
}

type outbound struct {
	userID string
	client *Client
	data   []byte
}

// WebSocketHub manages WebSocket connections and pushes assessment events to
// every connection of the affected user.
type WebSocketHub struct {
	clients    map[*Client]bool
	outbound   chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	handler    *wshandler.Handler
	mu         sync.RWMutex
	log        zerolog.Logger
}

// NewWebSocketHub creates a new WebSocket hub. Upgrades are accepted from
// allowedOrigins; "*" accepts any origin.
func NewWebSocketHub(log zerolog.Logger, handler *wshandler.Handler, allowedOrigins []string) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*Client]bool),
		outbound:   make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		handler:    handler,
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run starts the WebSocket hub.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Str("user_id", client.UserID).Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Msg("Client disconnected")

		case msg := <-h.outbound:
			h.mu.Lock()
			for client := range h.clients {
				if msg.client != nil && client != msg.client {
					continue
				}
				if msg.client == nil && client.UserID != msg.userID {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades an authenticated request and serves the connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID := r.Header.Get("X-Request-ID")
	if clientID == "" {
		clientID = "client-" + uuid.NewString()
	}

	client := &Client{
		ID:     clientID,
		UserID: userID,
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Notify implements service.Notifier. Events are dropped when the hub is
// saturated.
func (h *WebSocketHub) Notify(_ context.Context, ev service.Event) error {
	data, err := h.handler.Event(ev)
	if err != nil {
		return err
	}
	select {
	case h.outbound <- outbound{userID: ev.UserID, data: data}:
	default:
		h.log.Warn().Str("event", ev.Type).Str("user_id", ev.UserID).Msg("WebSocket hub saturated, dropping event")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 << 10)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Error().Err(err).Msg("Failed to parse WebSocket message")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		response, err := c.Hub.handler.Handle(ctx, c.UserID, msg.Type, msg.Payload)
		cancel()
		if err != nil {
			c.Hub.log.Error().Err(err).Str("type", msg.Type).Msg("Failed to handle message")
			continue
		}

		if response != nil {
			select {
			case c.Hub.outbound <- outbound{client: c, data: response}:
			case <-c.Hub.done:
				return
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
