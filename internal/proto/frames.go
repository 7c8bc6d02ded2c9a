package proto

import "time"

// Frame types pushed to clients.
const (
	FrameTypeMessage = "message"
	FrameTypeRead    = "read"
)

// Inbound is a client-originated frame on a chat-scoped connection.
type Inbound struct {
	Text string `json:"text"`
}

// Status confirms a successful connection handshake.
type Status struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id,omitempty"`
}

// Error is sent to a client when a frame or handshake fails.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Outbound is the envelope for server-originated events.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MessageData is the payload of a message event. ChatID lets global
// connections route events client-side.
type MessageData struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
}

// ReadData is the payload of a read event, emitted once a message has
// been read by every recipient.
type ReadData struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}
