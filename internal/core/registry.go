package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn is a live, writable connection handle owned by the Registry.
// Implementations must not block in Send; a slow consumer returns an
// error instead of stalling the caller.
type Conn interface {
	// Send queues an event for delivery to the peer.
	Send(ev *Event) error

	// Close releases the handle. Must be idempotent.
	Close()
}

// Registry is the process-wide table of live connections: the single
// source of truth for who can currently receive a push. Chat-scoped
// connections are keyed by (user, chat), global connections by user.
type Registry struct {
	mu     sync.RWMutex
	chat   map[uuid.UUID]map[uuid.UUID]Conn // userID -> chatID -> conn
	global map[uuid.UUID]Conn
	log    *zerolog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		chat:   make(map[uuid.UUID]map[uuid.UUID]Conn),
		global: make(map[uuid.UUID]Conn),
		log:    logger,
	}
}

// RegisterChat associates a connection with the user's channel for one
// chat. A prior registration for the same (user, chat) pair is replaced
// and its handle closed, so a reconnect never leaves two live handles
// owning the same slot.
func (r *Registry) RegisterChat(conn Conn, userID, chatID uuid.UUID) {
	r.mu.Lock()
	bucket, ok := r.chat[userID]
	if !ok {
		bucket = make(map[uuid.UUID]Conn)
		r.chat[userID] = bucket
	}
	prev := bucket[chatID]
	bucket[chatID] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
		r.log.Debug().Stringer("user_id", userID).Stringer("chat_id", chatID).Msg("replaced chat connection")
	}
}

// RegisterGlobal associates a connection with the user's single global
// channel. A prior registration is replaced and closed.
func (r *Registry) RegisterGlobal(conn Conn, userID uuid.UUID) {
	r.mu.Lock()
	prev := r.global[userID]
	r.global[userID] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
		r.log.Debug().Stringer("user_id", userID).Msg("replaced global connection")
	}
}

// UnregisterChat removes the (user, chat) entry if it still holds the
// given handle. Removing an absent entry is a no-op, and a stale
// connection's deferred cleanup never tears down its replacement. The
// per-user bucket is dropped when its last entry goes.
func (r *Registry) UnregisterChat(conn Conn, userID, chatID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.chat[userID]
	if !ok {
		return
	}
	if bucket[chatID] != conn {
		return
	}
	delete(bucket, chatID)
	if len(bucket) == 0 {
		delete(r.chat, userID)
	}
}

// UnregisterGlobal removes the user's global entry if it still holds
// the given handle. Idempotent.
func (r *Registry) UnregisterGlobal(conn Conn, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.global[userID] != conn {
		return
	}
	delete(r.global, userID)
}

// SendToChatMember pushes an event to one user's chat-scoped channel.
// Best-effort: silently drops if the user is not connected to the chat.
func (r *Registry) SendToChatMember(ev *Event, userID, chatID uuid.UUID) {
	r.mu.RLock()
	conn := r.chat[userID][chatID]
	r.mu.RUnlock()

	if conn == nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		r.log.Warn().Err(err).Stringer("user_id", userID).Stringer("chat_id", chatID).Msg("chat push failed")
	}
}

// BroadcastToChat pushes an event to the chat-scoped and global channels
// of every recipient, skipping excludeUserID (uuid.Nil excludes nobody).
// Global delivery is limited to the given recipient set, so users outside
// the chat never observe its traffic. Each push is isolated: a transport
// failure on one recipient is logged and does not abort the rest.
func (r *Registry) BroadcastToChat(ev *Event, chatID uuid.UUID, recipients []uuid.UUID, excludeUserID uuid.UUID) {
	type target struct {
		userID uuid.UUID
		conn   Conn
		scope  string
	}

	r.mu.RLock()
	targets := make([]target, 0, len(recipients))
	for _, userID := range recipients {
		if userID == excludeUserID {
			continue
		}
		if conn := r.chat[userID][chatID]; conn != nil {
			targets = append(targets, target{userID, conn, "chat"})
		}
		if conn := r.global[userID]; conn != nil {
			targets = append(targets, target{userID, conn, "global"})
		}
	}
	r.mu.RUnlock()

	for _, t := range targets {
		if err := t.conn.Send(ev); err != nil {
			r.log.Warn().Err(err).
				Stringer("user_id", t.userID).
				Stringer("chat_id", chatID).
				Str("scope", t.scope).
				Msg("push failed")
		}
	}
}

// CloseAll closes and drops every held connection. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.global))
	for _, bucket := range r.chat {
		for _, conn := range bucket {
			conns = append(conns, conn)
		}
	}
	for _, conn := range r.global {
		conns = append(conns, conn)
	}
	r.chat = make(map[uuid.UUID]map[uuid.UUID]Conn)
	r.global = make(map[uuid.UUID]Conn)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
