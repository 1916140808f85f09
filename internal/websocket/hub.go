package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"

	"asyncops/internal/config"
	"asyncops/internal/infrastructure"
	"asyncops/pkg/contracts/events"
)

// ErrHubStopped is returned when a message is broadcast after Run returned
var ErrHubStopped = errors.New("websocket hub stopped")

// Options tunes connection handling
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows any.
	AllowedOrigins []string
}

// OptionsFromConfig maps the websocket section of the service config
func OptionsFromConfig(cfg config.WebSocketConfig, allowedOrigins []string) Options {
	return Options{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		PingPeriod:      cfg.PingPeriod,
		PongWait:        cfg.PongWait,
		WriteWait:       cfg.WriteWait,
		MaxMessageSize:  cfg.MaxMessageSize,
		SendBuffer:      cfg.SendBuffer,
		AllowedOrigins:  allowedOrigins,
	}
}

func (o Options) withDefaults() Options {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 1024
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 1024
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 512
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Hub maintains the set of active clients and broadcasts messages to them.
// The client set is owned by the Run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	started chan struct{}
	done    chan struct{}
	once    sync.Once

	mu    sync.RWMutex
	count int

	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *hubMetrics
}

type outbound struct {
	msgType events.MessageType
	payload []byte
}

// NewHub creates a hub. meter may be nil.
func NewHub(opts Options, logger *slog.Logger, meter metric.Meter) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newHubMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("websocket metrics: %w", err)
	}
	opts = opts.withDefaults()
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, opts.SendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		started:    make(chan struct{}),
		done:       make(chan struct{}),
		opts:       opts,
		logger:     infrastructure.WithComponent(logger, "websocket_hub"),
		metrics:    m,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

// Run processes registrations and broadcasts until ctx is cancelled.
// It may be called once.
func (h *Hub) Run(ctx context.Context) error {
	select {
	case <-h.started:
		return errors.New("websocket hub already running")
	default:
		close(h.started)
	}
	h.logger.InfoContext(ctx, "WebSocket hub started")
	defer h.shutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount(len(h.clients))
			h.metrics.clientDelta(ctx, 1)
			h.greet(ctx, client)
			h.logger.InfoContext(ctx, "Client connected",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(ctx, client)
				h.logger.InfoContext(ctx, "Client disconnected",
					slog.String("client_id", client.id),
					slog.Int("total_clients", len(h.clients)))
			}

		case msg := <-h.broadcast:
			h.fanOut(ctx, msg)
		}
	}
}

func (h *Hub) fanOut(ctx context.Context, msg outbound) {
	sent, dropped := 0, 0
	for client := range h.clients {
		select {
		case client.send <- msg.payload:
			sent++
		default:
			dropped++
			h.drop(ctx, client)
			h.logger.WarnContext(ctx, "Client send buffer full, disconnecting",
				slog.String("client_id", client.id),
				slog.String("message_type", string(msg.msgType)))
		}
	}
	h.metrics.recordBroadcast(ctx, string(msg.msgType), sent, dropped)
}

// drop removes the client and closes its send channel. Run goroutine only.
func (h *Hub) drop(ctx context.Context, client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
	h.metrics.clientDelta(ctx, -1)
}

func (h *Hub) shutdown(ctx context.Context) {
	for client := range h.clients {
		h.drop(ctx, client)
	}
	close(h.done)
	h.logger.InfoContext(ctx, "WebSocket hub stopped")
}

func (h *Hub) greet(ctx context.Context, client *Client) {
	payload, err := encode(ctx, events.MessageTypeConnection, events.ConnectionData{
		Status:   "connected",
		ClientID: client.id,
		Message:  "Connected to operation updates",
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode greeting", slog.String("error", err.Error()))
		return
	}
	client.send <- payload
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// BroadcastMessage wraps data in a message envelope and queues it for every
// client. It blocks while the broadcast queue is full.
func (h *Hub) BroadcastMessage(ctx context.Context, msgType events.MessageType, data any) error {
	payload, err := encode(ctx, msgType, data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- outbound{msgType: msgType, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encode(ctx context.Context, msgType events.MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(events.Message{
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
		TraceID:   infrastructure.GetTraceID(ctx),
	})
}

// ServeWS upgrades the request and attaches the connection to the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}
	h.attach(r.Context(), conn, uuid.NewString())
}

func (h *Hub) attach(ctx context.Context, conn Connection, id string) *Client {
	client := newClient(h, conn, id)
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		return nil
	}
	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}
