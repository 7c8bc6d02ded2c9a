package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messenger/internal/store"
)

// ChatHandlers provides HTTP handlers for chat management endpoints.
type ChatHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store: st,
		log:   logger,
	}
}

// CreatePersonalChatRequest represents the personal chat creation body.
type CreatePersonalChatRequest struct {
	MemberID string `json:"member_id" binding:"required,uuid"`
}

// CreateGroupChatRequest represents the group chat creation body.
type CreateGroupChatRequest struct {
	Name      string   `json:"name" binding:"required,min=1,max=64"`
	MemberIDs []string `json:"member_ids" binding:"required,min=1,dive,uuid"`
}

// MemberResponse represents a chat member in API responses.
type MemberResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID      string           `json:"id"`
	Name    string           `json:"name,omitempty"`
	Type    string           `json:"type"`
	Members []MemberResponse `json:"members"`
}

// CreatePersonalChat handles 2-party chat creation.
// POST /api/chats/personal
func (h *ChatHandlers) CreatePersonalChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreatePersonalChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create personal chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	memberID, err := uuid.Parse(req.MemberID)
	if err != nil || memberID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid member id"})
		return
	}

	if !h.membersExist(c, []uuid.UUID{memberID}) {
		return
	}

	chat, err := h.store.CreatePersonalChat(c.Request.Context(), []uuid.UUID{userID, memberID})
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", userID).Msg("failed to create personal chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Stringer("chat_id", chat.ID).Stringer("user_id", userID).Msg("personal chat created")
	h.respondChat(c, http.StatusCreated, chat)
}

// CreateGroupChat handles group chat creation.
// POST /api/chats/group
func (h *ChatHandlers) CreateGroupChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateGroupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
	for _, raw := range req.MemberIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid member id"})
			return
		}
		memberIDs = append(memberIDs, id)
	}

	if !h.membersExist(c, memberIDs) {
		return
	}

	chat, err := h.store.CreateGroupChat(c.Request.Context(), req.Name, userID, memberIDs)
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", userID).Str("name", req.Name).Msg("failed to create group chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Stringer("chat_id", chat.ID).Str("name", req.Name).Msg("group chat created")
	h.respondChat(c, http.StatusCreated, chat)
}

// ListChats handles listing the authenticated user's chats.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chats, err := h.store.ListUserChats(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", userID).Msg("failed to list chats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		resp, err := h.chatResponse(c, chat)
		if err != nil {
			return
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, response)
}

// GetChat handles fetching one chat by ID.
// GET /api/chats/:chat_id
func (h *ChatHandlers) GetChat(c *gin.Context) {
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

	chat, err := h.store.GetChat(c.Request.Context(), chatID)
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
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})
		return
	}

	h.respondChat(c, http.StatusOK, chat)
}

// membersExist verifies every referenced user exists, responding with
// 400 on the first missing one.
func (h *ChatHandlers) membersExist(c *gin.Context, memberIDs []uuid.UUID) bool {
	for _, id := range memberIDs {
		if _, err := h.store.GetUserByID(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user " + id.String() + " not found"})
				return false
			}
			h.log.Error().Err(err).Stringer("user_id", id).Msg("failed to load user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return false
		}
	}
	return true
}

func (h *ChatHandlers) respondChat(c *gin.Context, status int, chat *store.Chat) {
	resp, err := h.chatResponse(c, chat)
	if err != nil {
		return
	}
	c.JSON(status, resp)
}

// chatResponse builds the response shape, loading member details.
// On failure it writes a 500 and returns the error.
func (h *ChatHandlers) chatResponse(c *gin.Context, chat *store.Chat) (ChatResponse, error) {
	members := make([]MemberResponse, 0, len(chat.Members))
	for _, memberID := range chat.Members {
		user, err := h.store.GetUserByID(c.Request.Context(), memberID)
		if err != nil {
			h.log.Error().Err(err).Stringer("user_id", memberID).Msg("failed to load chat member")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return ChatResponse{}, err
		}
		members = append(members, MemberResponse{
			ID:    user.ID.String(),
			Name:  user.Name,
			Email: user.Email,
		})
	}

	return ChatResponse{
		ID:      chat.ID.String(),
		Name:    chat.Name,
		Type:    string(chat.Type),
		Members: members,
	}, nil
}
