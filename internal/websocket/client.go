package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tabtweak/internal/infrastructure"
	"tabtweak/pkg/contracts/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger
}

// NewClient creates a client for conn. traceID may be empty.
func NewClient(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	id := uuid.New().String()
	logger = infrastructure.WithComponent(logger, "websocket.client").With(slog.String("client_id", id))
	if traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// ID returns the client identifier
func (c *Client) ID() string {
	return c.id
}

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

// ReadPump reads from the connection until it fails, then unregisters the
// client. Only heartbeats are expected from clients.
func (c *Client) ReadPump() {
	ctx := c.context()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(ctx, "unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
		message = bytes.TrimSpace(bytes.ReplaceAll(message, newline, space))
		c.hub.metrics.RecordMessage(ctx, "received", len(message))

		var msg events.Message
		if err := json.Unmarshal(message, &msg); err == nil && msg.Type == events.TypeHeartbeat {
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}
		c.logger.DebugContext(ctx, "ignoring client message", slog.Int("size", len(message)))
	}
}

// WritePump writes hub messages and pings to the connection
func (c *Client) WritePump() {
	ctx := c.context()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(ctx, "error writing message", slog.String("error", err.Error()))
				return
			}
			c.hub.metrics.RecordMessage(ctx, "sent", len(message))

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(ctx, "failed to send ping", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// NewUpgrader returns an upgrader that accepts requests without an Origin
// header and requests from allowedOrigins. An empty list or "*" allows all.
func NewUpgrader(allowedOrigins []string, logger *slog.Logger) *websocket.Upgrader {
	logger = infrastructure.WithComponent(logger, "websocket.upgrader")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			logger.WarnContext(r.Context(), "websocket origin not allowed", slog.String("origin", origin))
			return false
		},
	}
}

// ServeWS upgrades the request and attaches a new client to hub
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.ErrorContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(hub, NewConnectionWrapper(conn), infrastructure.GetTraceID(ctx), hub.logger)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
