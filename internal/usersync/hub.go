package usersync

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventBufferSize = 256
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
)

// Event is a message sent to job event subscribers.
type Event struct {
	// Type is the message type (connected, status).
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Status    *Status   `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// EventHub streams sync job transitions to WebSocket subscribers.
type EventHub struct {
	// conns holds the current subscribers.
	conns map[*websocket.Conn]bool
	// mu protects conns.
	mu sync.RWMutex

	logger   *slog.Logger
	upgrader websocket.Upgrader

	events    chan Event
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewEventHub creates a new EventHub and starts its broadcast loop.
// checkOrigin may be nil to accept same-origin requests only.
func NewEventHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &EventHub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger.With("component", "sync-event-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		events:  make(chan Event, eventBufferSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.loop()
	return h
}

// Publish queues a job transition for broadcast. It never blocks; events are
// dropped when the buffer is full.
func (h *EventHub) Publish(status Status) {
	evt := Event{
		Type:      "status",
		Timestamp: time.Now(),
		Status:    &status,
	}
	select {
	case h.events <- evt:
	case <-h.stop:
	default:
		h.logger.Warn("dropping sync event, buffer full", "job_key", status.Key.String(), "state", status.State)
	}
}

func (h *EventHub) loop() {
	defer close(h.stopped)
	for {
		select {
		case evt := <-h.events:
			h.broadcast(evt)
		case <-h.stop:
			return
		}
	}
}

func (h *EventHub) broadcast(evt Event) {
	// Copy connection references so writes happen without holding the lock
	h.mu.RLock()
	if len(h.conns) == 0 {
		h.mu.RUnlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal sync event", "error", err)
		return
	}

	var toRemove []*websocket.Conn
	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write below reports failures
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("failed to send sync event", "error", err)
			toRemove = append(toRemove, conn)
		}
	}

	for _, conn := range toRemove {
		h.unsubscribe(conn)
	}
}

func (h *EventHub) subscribe(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.stop:
		return false
	default:
	}
	h.conns[conn] = true
	h.logger.Debug("client subscribed", "subscribers", len(h.conns))
	return true
}

func (h *EventHub) unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
		h.logger.Debug("client unsubscribed")
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWebSocket upgrades the request and subscribes the connection.
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	hello := Event{
		Type:      "connected",
		Timestamp: time.Now(),
		Message:   "Connected to user sync event stream",
	}
	if data, err := json.Marshal(hello); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		_ = conn.WriteMessage(websocket.TextMessage, data)   //nolint:errcheck
	}

	if !h.subscribe(conn) {
		conn.Close()
		return nil
	}
	go h.handleConnection(conn)

	return nil
}

// handleConnection keeps the connection alive until the peer goes away.
func (h *EventHub) handleConnection(conn *websocket.Conn) {
	defer h.unsubscribe(conn)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-h.stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Close stops the broadcast loop and closes every subscriber.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		close(h.stop)
		<-h.stopped

		h.mu.Lock()
		defer h.mu.Unlock()
		for conn := range h.conns {
			conn.Close()
			delete(h.conns, conn)
		}
	})
}
