package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/collinmckay/vulnsuite/internal/analysis"
)

// Hub manages WebSocket clients subscribed to analyzer output. Lines
// carried here are diagnostics only; job outcome is still observed via
// the polling endpoint.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Subscribe(projectID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[projectID] == nil {
		h.clients[projectID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[projectID][conn] = struct{}{}
}

func (h *Hub) Unsubscribe(projectID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[projectID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, projectID)
		}
	}
}

func (h *Hub) Broadcast(projectID string, line analysis.OutputLine) {
	// Snapshot the subscriber set; the map can change while we write.
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[projectID]))
	for conn := range h.clients[projectID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(line)
	if err != nil {
		return
	}

	var dead []*websocket.Conn
	for _, conn := range conns {
		err := conn.Write(context.Background(), websocket.MessageText, data)
		if err != nil {
			slog.Debug("ws write error", "error", err)
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		h.Unsubscribe(projectID, conn)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

type wsSubscribeMsg struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	// Read subscribe message
	_, data, err := conn.Read(r.Context())
	if err != nil {
		return
	}

	var msg wsSubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.ProjectID == "" {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid subscribe message")
		return
	}

	s.hub.Subscribe(msg.ProjectID, conn)
	defer s.hub.Unsubscribe(msg.ProjectID, conn)

	// Keep connection alive until the client goes away
	for {
		_, _, err := conn.Read(r.Context())
		if err != nil {
			return
		}
	}
}
