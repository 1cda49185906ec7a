// Package websocket pushes row changes to connected dashboards. Clients
// subscribe to resources and receive one event per create, update,
// delete or row action, so open grids know when to refetch.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/auth"
)

// AllResources subscribes to every resource the client may read.
const AllResources = "*"

// Event reports one change to a resource row. ID is empty for creates
// made through multipart uploads and other requests without a row in the
// path.
type Event struct {
	Type     string    `json:"type"`
	Resource string    `json:"resource"`
	ID       string    `json:"id,omitempty"`
	User     string    `json:"user,omitempty"`
	At       time.Time `json:"at"`
}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher receives change events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connected dashboard.
type Client struct {
	ID     string
	User   string
	Topics []string
	Send   chan []byte
	// Allowed reports whether the client may see changes to a resource.
	// Nil allows every resource.
	Allowed func(resource string) bool
	conn    Conn
}

func (c *Client) allowed(resource string) bool {
	return c.Allowed == nil || c.Allowed(resource)
}

// Hub tracks clients and their topic subscriptions. A topic is a resource
// name or AllResources.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		log:     log.With().Str("component", "websocket").Logger(),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.add(topic, client)
	}
}

func (h *Hub) add(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) remove(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Unregister removes a client from every topic and closes its Send
// channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.remove(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client. Topics already held are
// ignored.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	held := make(map[string]bool, len(client.Topics))
	for _, t := range client.Topics {
		held[t] = true
	}
	for _, topic := range topics {
		if topic == "" || held[topic] {
			continue
		}
		held[topic] = true
		h.add(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.remove(t, client)
	}
	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies a subscribe or unsubscribe message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends event to the clients subscribed to its resource or to
// all resources, skipping those not allowed to read it. Clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*Client]bool)
	for _, topic := range []string{event.Resource, AllResources} {
		for client := range h.clients[topic] {
			if sent[client] || !client.allowed(event.Resource) {
				continue
			}
			sent[client] = true
			select {
			case client.Send <- data:
			default:
				h.log.Warn().Str("client", client.ID).Str("resource", event.Resource).Msg("client buffer full, event dropped")
			}
		}
	}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		if c.conn != nil {
			c.conn.Close()
		}
		h.Unregister(c)
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Handler upgrades authenticated requests to change feeds.
type Handler struct {
	hub      *Hub
	visible  func(roles []string, resource string) bool
	upgrader gorillawebsocket.Upgrader
}

// NewHandler returns a handler for hub. visible decides which resources a
// caller with roles may follow. origins are the allowed browser origins;
// requests without an Origin header are always accepted.
func NewHandler(hub *Hub, visible func(roles []string, resource string) bool, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Handler{
		hub:     hub,
		visible: visible,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				o := r.Header.Get("Origin")
				return o == "" || allowed[o] || allowed["*"]
			},
		},
	}
}

// RegisterRoutes registers GET /events.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/events", h.HandleConnect)
}

// HandleConnect upgrades the connection and subscribes the client to the
// comma separated topics query parameter, or to all resources when it is
// absent.
func (h *Handler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	roles := auth.RolesFromContext(ctx)

	topics := []string{AllResources}
	if q := c.QueryParam("topics"); q != "" {
		topics = nil
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.NewString(),
		User: auth.UsernameFromContext(ctx),
		Send: make(chan []byte, 64),
		Allowed: func(resource string) bool {
			return h.visible == nil || h.visible(roles, resource)
		},
		conn: &gorillaConnAdapter{ws},
	}
	h.hub.Register(client)
	h.hub.Subscribe(client, topics)
	h.hub.log.Debug().Str("client", client.ID).Str("user", client.User).Strs("topics", topics).Msg("client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

// readPump applies subscription messages until the connection closes.
func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

// writePump sends queued events and keeps the connection alive with
// pings.
func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
