package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messenger/internal/store"
)

// Receipts records individual read events and promotes a message to
// fully read once every non-sender member has read it.
type Receipts struct {
	store    store.Store
	registry *Registry
	log      *zerolog.Logger
	locks    lockTable // per-message: makes check-and-insert plus the flag flip atomic
}

// NewReceipts constructs the read-receipt aggregator.
func NewReceipts(st store.Store, registry *Registry, logger *zerolog.Logger) *Receipts {
	return &Receipts{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// MarkRead records that readerID has read messageID. Marking one's own
// message is a no-op success with a nil receipt: the sender implicitly
// read it. Re-marking returns the existing receipt. When the last
// non-sender member reads the message, its aggregate flag flips true
// (one-way) and connected members are notified.
func (r *Receipts) MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (*store.ReadReceipt, error) {
	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	chat, err := r.store.GetChat(ctx, msg.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("load chat: %w", err)
	}

	if !chat.HasMember(readerID) {
		return nil, ErrNotAMember
	}

	if msg.SenderID == readerID {
		return nil, nil
	}

	lock := r.locks.get(messageID)
	lock.Lock()
	defer lock.Unlock()

	receipt, err := r.store.InsertReadReceipt(ctx, messageID, readerID)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}

	// Re-read under the lock: a concurrent reader may have completed the
	// aggregate already, and the flip must happen exactly once.
	msg, err = r.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("reload message: %w", err)
	}

	if !msg.IsRead {
		done, err := r.allMembersRead(ctx, chat, msg.SenderID, messageID)
		if err != nil {
			return nil, err
		}
		if done {
			if err := r.store.SetMessageRead(ctx, messageID); err != nil {
				return nil, fmt.Errorf("set message read: %w", err)
			}
			r.log.Debug().Stringer("message_id", messageID).Msg("message fully read")

			ev := &Event{
				Kind:   EventRead,
				ChatID: chat.ID,
				Read:   &ReadEvent{MessageID: messageID, ChatID: chat.ID},
			}
			r.registry.BroadcastToChat(ev, chat.ID, chat.Members, uuid.Nil)
		}
	}

	return receipt, nil
}

// allMembersRead reports whether every chat member besides the sender
// has a receipt for the message. Member counts are bounded by chat size,
// so the full scan per call is cheap.
func (r *Receipts) allMembersRead(ctx context.Context, chat *store.Chat, senderID, messageID uuid.UUID) (bool, error) {
	readerIDs, err := r.store.ListReceiptUserIDs(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("list receipts: %w", err)
	}

	read := make(map[uuid.UUID]struct{}, len(readerIDs))
	for _, id := range readerIDs {
		read[id] = struct{}{}
	}

	for _, member := range chat.Members {
		if member == senderID {
			continue
		}
		if _, ok := read[member]; !ok {
			return false, nil
		}
	}
	return true, nil
}
