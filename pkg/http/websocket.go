package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fluently-server/pkg/analysis"
	"fluently-server/pkg/metrics"
)

// AnalyticsSource answers on-demand analytics requests from WebSocket clients.
type AnalyticsSource interface {
	SessionAnalytics(sessionID string) (*analysis.SessionAnalytics, error)
}

// FeedbackHub fans real-time feedback out to WebSocket clients subscribed to
// analysis sessions.
type FeedbackHub struct {
	logger       *logrus.Logger
	upgrader     websocket.Upgrader
	analytics    AnalyticsSource
	clients      map[*FeedbackClient]bool
	subscribers  map[string]map[*FeedbackClient]bool
	clientsMu    sync.RWMutex
	register     chan *FeedbackClient
	unregister   chan *FeedbackClient
	broadcast    chan *hubEnvelope
	pingInterval time.Duration
}

// FeedbackClient is one connected WebSocket client bound to a single session.
type FeedbackClient struct {
	conn         *websocket.Conn
	send         chan []byte
	hub          *FeedbackHub
	sessionID    string
	connectionID string
}

// hubEnvelope is a pre-marshaled message routed to one session's subscribers.
type hubEnvelope struct {
	sessionID string
	data      []byte
}

// wsMessage is the wire shape for everything the hub sends.
type wsMessage struct {
	Type           string                      `json:"type"`
	SessionID      string                      `json:"session_id,omitempty"`
	ConnectionID   string                      `json:"connection_id,omitempty"`
	Timestamp      time.Time                   `json:"timestamp"`
	Feedback       []analysis.RealTimeFeedback `json:"feedback,omitempty"`
	Data           *analysis.SessionAnalytics  `json:"data,omitempty"`
	FinalAnalytics *analysis.SessionAnalytics  `json:"final_analytics,omitempty"`
	Error          string                      `json:"error,omitempty"`
}

// NewFeedbackHub creates a hub serving live feedback for analysis sessions.
func NewFeedbackHub(logger *logrus.Logger, analytics AnalyticsSource) *FeedbackHub {
	return &FeedbackHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		analytics:    analytics,
		clients:      make(map[*FeedbackClient]bool),
		subscribers:  make(map[string]map[*FeedbackClient]bool),
		register:     make(chan *FeedbackClient),
		unregister:   make(chan *FeedbackClient),
		broadcast:    make(chan *hubEnvelope, 256),
		pingInterval: 54 * time.Second,
	}
}

// Start begins the hub's event loop.
func (h *FeedbackHub) Start() {
	go h.run()
}

func (h *FeedbackHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			if h.subscribers[client.sessionID] == nil {
				h.subscribers[client.sessionID] = make(map[*FeedbackClient]bool)
			}
			h.subscribers[client.sessionID][client] = true
			count := len(h.clients)
			h.clientsMu.Unlock()
			metrics.SetWSConnections(count)
			h.logger.WithFields(logrus.Fields{
				"session_id":    client.sessionID,
				"connection_id": client.connectionID,
			}).Debug("Feedback WebSocket client registered")

		case client := <-h.unregister:
			h.cleanupClients([]*FeedbackClient{client})

		case envelope := <-h.broadcast:
			stale := h.deliver(envelope)
			if len(stale) > 0 {
				h.cleanupClients(stale)
			}
		}
	}
}

// deliver sends an envelope to every subscriber of its session, returning
// clients whose send buffers are full.
func (h *FeedbackHub) deliver(envelope *hubEnvelope) []*FeedbackClient {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	var stale []*FeedbackClient
	for client := range h.subscribers[envelope.sessionID] {
		select {
		case client.send <- envelope.data:
			metrics.WSMessageSent()
		default:
			stale = append(stale, client)
		}
	}
	return stale
}

// cleanupClients removes clients from both indexes and closes their send
// channels. Empty per-session subscriber maps are removed so the index never
// accumulates entries for finished sessions.
func (h *FeedbackHub) cleanupClients(clients []*FeedbackClient) {
	if len(clients) == 0 {
		return
	}

	h.clientsMu.Lock()
	for _, client := range clients {
		if _, ok := h.clients[client]; !ok {
			continue
		}
		delete(h.clients, client)
		if subs := h.subscribers[client.sessionID]; subs != nil {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscribers, client.sessionID)
			}
		}
		close(client.send)
		h.logger.WithField("connection_id", client.connectionID).Debug("Feedback WebSocket client unregistered")
	}
	count := len(h.clients)
	h.clientsMu.Unlock()
	metrics.SetWSConnections(count)
}

// ServeHTTP upgrades /ws/{session_id} requests and attaches the client to
// the session's subscriber set.
func (h *FeedbackHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		sessionID = strings.TrimPrefix(r.URL.Path, "/ws/")
	}
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &FeedbackClient{
		conn:         conn,
		send:         make(chan []byte, 64),
		hub:          h,
		sessionID:    sessionID,
		connectionID: uuid.NewString()[:8],
	}

	h.register <- client

	welcome := &wsMessage{
		Type:         "connected",
		SessionID:    sessionID,
		ConnectionID: client.connectionID,
		Timestamp:    time.Now(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		client.send <- data
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastFeedback pushes new feedback items to the session's subscribers.
func (h *FeedbackHub) BroadcastFeedback(sessionID string, feedback []analysis.RealTimeFeedback) {
	if len(feedback) == 0 {
		return
	}
	h.enqueue(sessionID, &wsMessage{
		Type:      "realtime_feedback",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Feedback:  feedback,
	})
}

// BroadcastSessionEnded notifies subscribers that the session is gone and
// hands them the final analytics snapshot.
func (h *FeedbackHub) BroadcastSessionEnded(sessionID string, final *analysis.SessionAnalytics) {
	h.enqueue(sessionID, &wsMessage{
		Type:           "session_ended",
		SessionID:      sessionID,
		Timestamp:      time.Now(),
		FinalAnalytics: final,
	})
}

func (h *FeedbackHub) enqueue(sessionID string, message *wsMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	select {
	case h.broadcast <- &hubEnvelope{sessionID: sessionID, data: data}:
	default:
		h.logger.WithField("session_id", sessionID).Warn("Feedback broadcast channel full, dropping message")
	}
}

// ConnectionCount returns the number of connected clients.
func (h *FeedbackHub) ConnectionCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// readPump consumes client messages until the connection dies.
func (c *FeedbackClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Debug("WebSocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump drains the send channel and keeps the connection alive with pings.
func (c *FeedbackClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one client request.
func (c *FeedbackClient) handleMessage(message []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.logger.WithError(err).Debug("Failed to parse client message")
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(&wsMessage{Type: "pong", Timestamp: time.Now()})

	case "request_analytics":
		if c.hub.analytics == nil {
			c.reply(&wsMessage{Type: "error", SessionID: c.sessionID, Timestamp: time.Now(), Error: "analytics unavailable"})
			return
		}
		snapshot, err := c.hub.analytics.SessionAnalytics(c.sessionID)
		if err != nil {
			c.reply(&wsMessage{Type: "error", SessionID: c.sessionID, Timestamp: time.Now(), Error: err.Error()})
			return
		}
		c.reply(&wsMessage{Type: "analytics_update", SessionID: c.sessionID, Timestamp: time.Now(), Data: snapshot})

	default:
		c.hub.logger.WithField("type", msg.Type).Debug("Unknown message type from client")
	}
}

func (c *FeedbackClient) reply(message *wsMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
