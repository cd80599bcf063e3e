package models

// WebSocket event types for the dashboard feed
const (
	EventModeration = "moderation.event"
	EventError      = "error"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
