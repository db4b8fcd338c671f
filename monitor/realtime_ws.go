// Package monitor streams training progress to websocket subscribers.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"linfit/sgd"
)

// MessageType identifies a monitor message.
type MessageType string

const (
	RunStarted     MessageType = "run_started"
	EpochCompleted MessageType = "epoch_completed"
	RunCompleted   MessageType = "run_completed"
	Heartbeat      MessageType = "heartbeat"
)

// Message is the envelope sent to every subscriber.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// RunStartedMessage announces a new training run. SessionID correlates the
// live messages of one run; the persisted run ID is only known at completion.
type RunStartedMessage struct {
	SessionID    int64   `json:"session_id"`
	Name         string  `json:"name"`
	DataPoints   int     `json:"data_points"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
}

// EpochMessage carries one epoch record of a running training.
type EpochMessage struct {
	SessionID int64           `json:"session_id"`
	Record    sgd.EpochRecord `json:"record"`
}

// RunCompletedMessage announces the end of a run and its stored run ID.
type RunCompletedMessage struct {
	SessionID int64          `json:"session_id"`
	RunID     int64          `json:"run_id"`
	Final     sgd.Parameters `json:"final"`
	FinalLoss float64        `json:"final_loss"`
	Epochs    int            `json:"epochs"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans out messages to connected websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHub creates a hub; call Start in a goroutine to run it.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the hub loop until Stop is called.
func (h *Hub) Start() {
	defer zap.S().Info("monitor hub stopped")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Infof("monitor client connected: %s (total: %d)", c.id, total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Infof("monitor client disconnected: %s (total: %d)", c.id, total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades an HTTP request and attaches the client to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
		id:   fmt.Sprintf("client_%d", time.Now().UnixNano()),
	}

	// The hub loop is the only receiver; once it has stopped, nothing will
	// ever take the registration, so drop the connection instead of blocking.
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

// Broadcast queues a message for all clients, dropping it if the queue is full.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		zap.S().Warn("monitor broadcast queue full, dropping message")
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.S().Debugf("websocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.S().Debugf("websocket read error: %v", err)
			}
			return
		}
		// Subscribers are read-only; inbound frames are ignored.
	}
}

// TrainingMonitor publishes training lifecycle events through a hub.
type TrainingMonitor struct {
	hub *Hub
}

// NewTrainingMonitor wraps a hub.
func NewTrainingMonitor(hub *Hub) *TrainingMonitor {
	return &TrainingMonitor{hub: hub}
}

// SendRunStarted announces that a run began.
func (m *TrainingMonitor) SendRunStarted(msg RunStartedMessage) {
	m.publish(RunStarted, msg)
}

// SendEpoch publishes a completed epoch. Wire this to Trainer.OnEpoch.
func (m *TrainingMonitor) SendEpoch(sessionID int64, rec sgd.EpochRecord) {
	m.publish(EpochCompleted, EpochMessage{SessionID: sessionID, Record: rec})
}

// SendRunCompleted announces that a run finished.
func (m *TrainingMonitor) SendRunCompleted(msg RunCompletedMessage) {
	m.publish(RunCompleted, msg)
}

// SendHeartbeat lets subscribers know the service is alive.
func (m *TrainingMonitor) SendHeartbeat() {
	m.publish(Heartbeat, map[string]string{"status": "alive"})
}

func (m *TrainingMonitor) publish(msgType MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.S().Errorf("failed to marshal %s message: %v", msgType, err)
		return
	}
	envelope, err := json.Marshal(Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		zap.S().Errorf("failed to marshal message envelope: %v", err)
		return
	}
	m.hub.Broadcast(envelope)
}
