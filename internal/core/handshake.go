package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"messenger/internal/store"
)

// TokenResolver resolves a raw token into a user identity.
// Implemented by the authentication service.
type TokenResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*store.User, error)
}

// Membership answers chat-membership questions for the handshake.
type Membership interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// Handshake gates admission into the Registry: it validates an inbound
// connection's identity and, for chat-scoped connections, its access to
// the requested chat.
type Handshake struct {
	tokens TokenResolver
	chats  Membership
}

// NewHandshake constructs a handshake gate.
func NewHandshake(tokens TokenResolver, chats Membership) *Handshake {
	return &Handshake{tokens: tokens, chats: chats}
}

// Admit resolves rawToken into a user and, when chatID is non-nil,
// verifies membership. Failures come back as ErrInvalidToken or
// ErrAccessDenied; the caller closes the connection on either.
func (h *Handshake) Admit(ctx context.Context, rawToken string, chatID *uuid.UUID) (*store.User, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}

	user, err := h.tokens.ResolveIdentity(ctx, rawToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if chatID != nil {
		ok, err := h.chats.IsMember(ctx, *chatID, user.ID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return nil, ErrAccessDenied
		}
	}

	return user, nil
}
