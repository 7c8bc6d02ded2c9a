package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is a notification the core emits to live connections.
type EventKind int

const (
	// EventMessage notifies recipients about a newly created message.
	EventMessage EventKind = iota
	// EventRead notifies recipients that a message became fully read.
	EventRead
)

// Event is pushed to live connections to describe what happened.
type Event struct {
	Kind    EventKind
	ChatID  uuid.UUID
	Message *MessageEvent
	Read    *ReadEvent
}

// MessageEvent carries the delivery payload for one persisted message.
type MessageEvent struct {
	ID         uuid.UUID
	ChatID     uuid.UUID
	SenderID   uuid.UUID
	SenderName string
	Text       string
	Timestamp  time.Time
	IsRead     bool
}

// ReadEvent announces that a message's aggregate read flag flipped.
type ReadEvent struct {
	MessageID uuid.UUID
	ChatID    uuid.UUID
}
