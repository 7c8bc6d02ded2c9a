package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messenger/internal/store"
)

// Delivery turns a client-submitted message into a persisted record and
// a fanned-out event. Both the websocket path and the REST creation path
// go through this one pipeline.
type Delivery struct {
	store    store.Store
	registry *Registry
	log      *zerolog.Logger
	locks    lockTable // per-chat: keeps persist order equal to broadcast order
}

// NewDelivery constructs the delivery engine.
func NewDelivery(st store.Store, registry *Registry, logger *zerolog.Logger) *Delivery {
	return &Delivery{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// CreateAndDeliver authorizes the sender, persists the message and pushes
// it to every connected member except the sender. The returned message is
// the synchronous response for the originating request.
func (d *Delivery) CreateAndDeliver(ctx context.Context, senderID, chatID uuid.UUID, text string) (*store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrBadRequest
	}

	chat, err := d.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("load chat: %w", err)
	}

	if !chat.HasMember(senderID) {
		return nil, ErrNotAMember
	}

	sender, err := d.store.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}

	// The lock spans persist and broadcast, so per-chat delivery order
	// always matches persistence order.
	lock := d.locks.get(chatID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := d.store.CreateMessage(ctx, chatID, senderID, text)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	ev := &Event{
		Kind:   EventMessage,
		ChatID: chatID,
		Message: &MessageEvent{
			ID:         msg.ID,
			ChatID:     chatID,
			SenderID:   senderID,
			SenderName: sender.Name,
			Text:       msg.Text,
			Timestamp:  msg.CreatedAt,
			IsRead:     false,
		},
	}
	d.registry.BroadcastToChat(ev, chatID, chat.Members, senderID)

	d.log.Debug().
		Stringer("message_id", msg.ID).
		Stringer("chat_id", chatID).
		Stringer("sender_id", senderID).
		Msg("message delivered")

	return msg, nil
}
