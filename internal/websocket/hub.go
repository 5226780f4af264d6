package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tabtweak/internal/infrastructure"
	"tabtweak/pkg/contracts/events"
)

const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *OTelMetrics

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub. A nil logger uses the default logger.
func NewHub(logger *slog.Logger) *Hub {
	metrics, err := NewOTelMetrics()
	logger = infrastructure.WithComponent(logger, "websocket.hub")
	if err != nil {
		logger.Warn("websocket metrics disabled", slog.String("error", err.Error()))
	}

	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		metrics:    metrics,
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in a new goroutine
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.closeAll()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "normal")

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.totalConnections++
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordConnection(ctx)
	h.logger.InfoContext(ctx, "client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	data, err := json.Marshal(events.Message{
		Type: events.TypeConnection,
		Data: events.ConnectionData{
			Status:   "connected",
			ClientID: client.id,
			Version:  events.ProtocolVersion,
		},
		Timestamp: time.Now().UTC(),
		TraceID:   client.traceID,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.WarnContext(ctx, "client buffer full, connection message dropped",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.RecordDisconnection(ctx, time.Since(client.connectedAt), reason)
	h.logger.InfoContext(ctx, "client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		h.metrics.RecordDropped(client.context(), "client")
		h.removeClient(client, "slow_consumer")
	}

	h.logger.Debug("broadcast delivered",
		slog.Int("client_count", len(clients)),
		slog.Int("disconnected", len(slow)),
		slog.Int("message_size", len(message)))
}

// BroadcastUpdate sends an event to every client. subject names what the
// event is about, such as an operation ID.
func (h *Hub) BroadcastUpdate(eventType, subject, status string, data interface{}) {
	h.BroadcastUpdateWithTrace(eventType, subject, status, data, "")
}

// BroadcastUpdateWithTrace is BroadcastUpdate with a trace ID attached
func (h *Hub) BroadcastUpdateWithTrace(eventType, subject, status string, data interface{}, traceID string) {
	h.Publish(events.Message{
		Type:      events.MessageType(eventType),
		Subject:   subject,
		Status:    status,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	})
}

// Publish queues msg for delivery. Messages are dropped when the hub is
// stopped or its queue is full.
func (h *Hub) Publish(msg events.Message) {
	ctx := context.Background()
	if msg.TraceID != "" {
		ctx = infrastructure.WithTraceID(ctx, msg.TraceID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(msg.Type)))
		return
	}

	select {
	case <-h.quit:
		return
	case h.broadcast <- data:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.metrics.RecordDropped(ctx, "hub")
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped",
			slog.String("message_type", string(msg.Type)))
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub. The hub loop closes every client on its way out.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}

// closeAll runs on the hub goroutine, the only sender on client channels
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// GetHubMetrics returns current hub counters
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
		"broadcast_queue":   len(h.broadcast),
	}
}
