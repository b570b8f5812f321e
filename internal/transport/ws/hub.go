package ws

import (
	"encoding/json"
	"log"
	"sync"

	"symptomcheck/internal/model"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgClosed   MessageType = "assessment_closed"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans snapshots out to every connection watching an assessment
type Hub struct {
	// assessmentID -> connections (one per open tab)
	conns map[string]map[*Connection]struct{}

	mu sync.RWMutex

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	disconnect chan string
	quit       chan struct{}
}

// Connection represents a WebSocket connection
type Connection struct {
	AssessmentID string
	Send         chan []byte
	Hub          *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	AssessmentID string
	Message      *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		disconnect: make(chan string, 16),
		quit:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.AssessmentID] == nil {
				h.conns[conn.AssessmentID] = make(map[*Connection]struct{})
			}
			h.conns[conn.AssessmentID][conn] = struct{}{}
			h.mu.Unlock()
			log.Printf("[WS] Client connected to assessment %s", conn.AssessmentID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.conns[conn.AssessmentID]; ok {
				if _, ok := conns[conn]; ok {
					delete(conns, conn)
					close(conn.Send)
					if len(conns) == 0 {
						delete(h.conns, conn.AssessmentID)
					}
					log.Printf("[WS] Client disconnected from assessment %s", conn.AssessmentID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			data, _ := json.Marshal(msg.Message)
			for conn := range h.conns[msg.AssessmentID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()

		case id := <-h.disconnect:
			h.mu.Lock()
			data, _ := json.Marshal(&Message{Type: MsgClosed, Payload: json.RawMessage(`{}`)})
			for conn := range h.conns[id] {
				select {
				case conn.Send <- data:
				default:
				}
				close(conn.Send)
			}
			delete(h.conns, id)
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for id, conns := range h.conns {
				for conn := range conns {
					close(conn.Send)
				}
				delete(h.conns, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
	}
}

// BroadcastSnapshot pushes a snapshot to everyone watching the assessment
// (implements service.Broadcaster)
func (h *Hub) BroadcastSnapshot(assessmentID string, snap *model.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[WS] Failed to encode snapshot for %s: %v", assessmentID, err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{
		AssessmentID: assessmentID,
		Message:      &Message{Type: MsgSnapshot, Payload: data},
	}:
	case <-h.quit:
	}
}

// Disconnect closes every connection of an assessment (implements
// service.Broadcaster)
func (h *Hub) Disconnect(assessmentID string) {
	select {
	case h.disconnect <- assessmentID:
	case <-h.quit:
	}
}

// Connections returns the number of open connections for an assessment
func (h *Hub) Connections(assessmentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[assessmentID])
}

// Close stops the hub and closes every connection
func (h *Hub) Close() {
	close(h.quit)
}
