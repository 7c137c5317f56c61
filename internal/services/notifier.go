package services

import (
	"time"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
)

// NoticeLevel is the severity of a user-visible notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message the UI shows to the therapist
type Notice struct {
	Level       NoticeLevel `json:"level"`
	Message     string      `json:"message"`
	OperationID string      `json:"operationId,omitempty"`
	Time        time.Time   `json:"time"`
}

// Notifier delivers notices. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

// LogNotifier writes notices to the log
type LogNotifier struct{}

// Notify implements Notifier
func (LogNotifier) Notify(n Notice) {
	logger := observability.WithField("notice", string(n.Level))
	if n.OperationID != "" {
		logger = logger.WithField("op_id", n.OperationID)
	}
	switch n.Level {
	case NoticeError:
		logger.Error(n.Message)
	case NoticeWarning:
		logger.Warn(n.Message)
	default:
		logger.Info(n.Message)
	}
}

// HubNotifier pushes notices to WebSocket clients on TopicNotices
type HubNotifier struct {
	hub *WebSocketHub
}

// NewHubNotifier creates a notifier broadcasting through hub
func NewHubNotifier(hub *WebSocketHub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// Notify implements Notifier
func (n *HubNotifier) Notify(notice Notice) {
	n.hub.BroadcastToTopic(TopicNotices, WSMessage{Type: WSTypeNotice, Payload: notice})
}

// MultiNotifier fans a notice out to several notifiers in order
type MultiNotifier []Notifier

// Notify implements Notifier
func (m MultiNotifier) Notify(n Notice) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}

// NopNotifier discards notices
type NopNotifier struct{}

// Notify implements Notifier
func (NopNotifier) Notify(Notice) {}
