package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// ChatType defines the kind of chat.
type ChatType string

const (
	ChatTypePersonal ChatType = "personal"
	ChatTypeGroup    ChatType = "group"
)

// Chat represents a conversation between a fixed set of members.
// Name is empty for personal chats and required for group chats.
type Chat struct {
	ID        uuid.UUID
	Name      string
	Type      ChatType
	Members   []uuid.UUID
	CreatedAt time.Time
}

// HasMember reports whether userID belongs to the chat's member set.
func (c *Chat) HasMember(userID uuid.UUID) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Group is the named wrapper around a group chat. Its member set mirrors
// the chat's member set.
type Group struct {
	ID        uuid.UUID
	Name      string
	CreatorID uuid.UUID
	ChatID    uuid.UUID
	CreatedAt time.Time
}

// Message represents a persisted chat message. IsRead is the aggregate
// read flag: true once every non-sender member has produced a receipt.
type Message struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	SenderID  uuid.UUID
	Text      string
	CreatedAt time.Time
	IsRead    bool
}

// ReadReceipt records that one user has read one message.
// At most one receipt exists per (message, user) pair.
type ReadReceipt struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	UserID    uuid.UUID
	ReadAt    time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// ChatStore handles chat and group persistence.
type ChatStore interface {
	// CreatePersonalChat creates a personal chat with the given members.
	CreatePersonalChat(ctx context.Context, memberIDs []uuid.UUID) (*Chat, error)

	// CreateGroupChat creates a group chat plus its group record.
	// The creator is always part of the member set.
	CreateGroupChat(ctx context.Context, name string, creatorID uuid.UUID, memberIDs []uuid.UUID) (*Chat, error)

	// GetChat retrieves a chat with its member set.
	GetChat(ctx context.Context, id uuid.UUID) (*Chat, error)

	// ListUserChats lists all chats the user is a member of.
	ListUserChats(ctx context.Context, userID uuid.UUID) ([]*Chat, error)

	// IsMember checks if the user belongs to the chat.
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message, assigning its ID and timestamp.
	CreateMessage(ctx context.Context, chatID, senderID uuid.UUID, text string) (*Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)

	// ListMessages retrieves messages from a chat ordered by creation time.
	ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*Message, error)

	// SetMessageRead flips the aggregate read flag. One-way transition.
	SetMessageRead(ctx context.Context, id uuid.UUID) error
}

// ReceiptStore handles read-receipt persistence.
type ReceiptStore interface {
	// InsertReadReceipt records that userID read messageID. If a receipt
	// for the pair already exists, the existing one is returned.
	InsertReadReceipt(ctx context.Context, messageID, userID uuid.UUID) (*ReadReceipt, error)

	// ListReceiptUserIDs returns the IDs of users who have read the message.
	ListReceiptUserIDs(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore
	ReceiptStore

	// Close releases underlying resources.
	Close() error
}
