package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messenger/internal/core"
	"messenger/internal/store"
)

// MessageHandlers provides HTTP handlers for message endpoints. Message
// creation goes through the same delivery pipeline as the websocket
// path, and history fetches mark unread messages read through the
// aggregator.
type MessageHandlers struct {
	store    store.Store
	delivery *core.Delivery
	receipts *core.Receipts
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, delivery *core.Delivery, receipts *core.Receipts, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store:    st,
		delivery: delivery,
		receipts: receipts,
		log:      logger,
	}
}

// CreateMessageRequest represents the message creation body.
type CreateMessageRequest struct {
	ChatID string `json:"chat_id" binding:"required,uuid"`
	Text   string `json:"text" binding:"required"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
}

// HistoryResponse represents a chat history page.
type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
}

// ReceiptResponse represents a read receipt in API responses.
type ReceiptResponse struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// CreateMessage handles message creation over REST.
// POST /api/chats/messages
func (h *MessageHandlers) CreateMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}

	msg, err := h.delivery.CreateAndDeliver(c.Request.Context(), userID, chatID, req.Text)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	name, _ := c.Get(ContextKeyUserName)
	senderName, _ := name.(string)

	c.JSON(http.StatusCreated, MessageResponse{
		ID:         msg.ID.String(),
		ChatID:     msg.ChatID.String(),
		SenderID:   msg.SenderID.String(),
		SenderName: senderName,
		Text:       msg.Text,
		Timestamp:  msg.CreatedAt,
		IsRead:     msg.IsRead,
	})
}

// History handles fetching chat history. Unread messages authored by
// others are marked read as a side effect of viewing them.
// GET /api/chats/:chat_id/history
func (h *MessageHandlers) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}

	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	ctx := c.Request.Context()

	chat, err := h.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
			return
		}
		h.log.Error().Err(err).Stringer("chat_id", chatID).Msg("failed to load chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !chat.HasMember(userID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this chat"})
		return
	}

	messages, err := h.store.ListMessages(ctx, chatID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Stringer("chat_id", chatID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// Viewing history acknowledges the unread messages in it.
	for _, msg := range messages {
		if msg.SenderID == userID || msg.IsRead {
			continue
		}
		if _, err := h.receipts.MarkRead(ctx, msg.ID, userID); err != nil {
			h.log.Warn().Err(err).Stringer("message_id", msg.ID).Msg("failed to mark history message read")
		}
	}

	names := make(map[uuid.UUID]string, len(chat.Members))
	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		name, ok := names[msg.SenderID]
		if !ok {
			sender, err := h.store.GetUserByID(ctx, msg.SenderID)
			if err != nil {
				h.log.Error().Err(err).Stringer("user_id", msg.SenderID).Msg("failed to load sender")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
			name = sender.Name
			names[msg.SenderID] = name
		}
		response = append(response, MessageResponse{
			ID:         msg.ID.String(),
			ChatID:     msg.ChatID.String(),
			SenderID:   msg.SenderID.String(),
			SenderName: name,
			Text:       msg.Text,
			Timestamp:  msg.CreatedAt,
			IsRead:     msg.IsRead,
		})
	}

	c.JSON(http.StatusOK, HistoryResponse{Messages: response, Total: len(response)})
}

// MarkRead handles read acknowledgment for one message.
// POST /api/chats/messages/:message_id/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	receipt, err := h.receipts.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	if receipt == nil {
		// sender acknowledging their own message
		c.JSON(http.StatusOK, gin.H{"message": "own message is implicitly read"})
		return
	}

	c.JSON(http.StatusOK, ReceiptResponse{
		MessageID: receipt.MessageID.String(),
		UserID:    receipt.UserID.String(),
		ReadAt:    receipt.ReadAt,
	})
}

// respondDomainError maps core error codes to HTTP statuses.
func (h *MessageHandlers) respondDomainError(c *gin.Context, err error) {
	switch core.ErrorCode(err) {
	case core.ErrCodeChatNotFound, core.ErrCodeMessageNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case core.ErrCodeNotAMember, core.ErrCodeAccessDenied:
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case core.ErrCodeInvalidToken:
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	case core.ErrCodeBadRequest:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("unexpected domain error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
