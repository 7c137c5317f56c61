package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

// WebSocketHandler streams sync status and notices to the UI
type WebSocketHandler struct {
	hub      *services.WebSocketHub
	engine   *services.SyncEngine
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. An empty origins list accepts any origin.
func NewWebSocketHandler(hub *services.WebSocketHub, engine *services.SyncEngine, origins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		hub:    hub,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
	}
}

// HandleConnection upgrades to WebSocket, subscribes the client to status and
// notices, and sends the current status right away
// @Summary Sync status stream
// @Tags sync
// @Router /ws/sync [get]
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)
	h.hub.Subscribe(client, services.TopicSyncStatus)
	h.hub.Subscribe(client, services.TopicNotices)

	h.hub.SendTo(client, services.WSMessage{Type: services.WSTypeSyncStatus, Payload: h.engine.Status()})

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.hub.SendTo(client, services.WSMessage{Type: services.WSTypeError, Payload: "invalid message"})
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe, services.WSTypeUnsubscribe:
		topic := topicFromPayload(msg.Payload)
		if !services.IsKnownTopic(topic) {
			h.hub.SendTo(client, services.WSMessage{Type: services.WSTypeError, Payload: "unknown topic: " + topic})
			return
		}
		if msg.Type == services.WSTypeSubscribe {
			h.hub.Subscribe(client, topic)
			if topic == services.TopicSyncStatus {
				h.hub.SendTo(client, services.WSMessage{Type: services.WSTypeSyncStatus, Payload: h.engine.Status()})
			}
		} else {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		h.hub.SendTo(client, services.WSMessage{Type: services.WSTypePong})

	default:
		observability.WithField("client_id", client.ID).Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}

func topicFromPayload(payload interface{}) string {
	switch p := payload.(type) {
	case string:
		return p
	case map[string]interface{}:
		topic, _ := p["topic"].(string)
		return topic
	}
	return ""
}
