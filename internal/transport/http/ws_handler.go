package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messenger/internal/core"
	"messenger/internal/proto"
)

// WSHandler upgrades HTTP connections, runs the session handshake and
// bridges admitted connections into the registry.
type WSHandler struct {
	handshake  *core.Handshake
	registry   *core.Registry
	delivery   *core.Delivery
	sendBuffer int
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(handshake *core.Handshake, registry *core.Registry, delivery *core.Delivery, sendBuffer int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		handshake:  handshake,
		registry:   registry,
		delivery:   delivery,
		sendBuffer: sendBuffer,
		log:        logger,
	}
}

// ChatSocket serves GET /ws/:chat_id. The connection is chat-scoped:
// inbound frames carry message text for that chat, outbound frames are
// delivery events for it.
func (h *WSHandler) ChatSocket(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(400, ErrorResponse{Error: "invalid chat id"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx := c.Request.Context()

	user, err := h.handshake.Admit(ctx, c.Query("token"), &chatID)
	if err != nil {
		h.rejectConn(ctx, conn, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if err := wsjson.Write(ctx, conn, proto.Status{
		Status: "connected",
		UserID: user.ID.String(),
		ChatID: chatID.String(),
	}); err != nil {
		return
	}

	client := newWSClient(h.sendBuffer)
	h.registry.RegisterChat(client, user.ID, chatID)
	defer h.registry.UnregisterChat(client, user.ID, chatID)
	defer client.Close()

	h.log.Info().Stringer("user_id", user.ID).Stringer("chat_id", chatID).Msg("chat connection admitted")

	h.runLoops(ctx, conn, client, func(ctx context.Context) error {
		return h.chatReadLoop(ctx, conn, user.ID, chatID)
	})
}

// GlobalSocket serves GET /ws. The connection is the user's single
// cross-chat notification stream; it never accepts chat text frames.
func (h *WSHandler) GlobalSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx := c.Request.Context()

	user, err := h.handshake.Admit(ctx, c.Query("token"), nil)
	if err != nil {
		h.rejectConn(ctx, conn, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if err := wsjson.Write(ctx, conn, proto.Status{
		Status: "connected",
		UserID: user.ID.String(),
	}); err != nil {
		return
	}

	client := newWSClient(h.sendBuffer)
	h.registry.RegisterGlobal(client, user.ID)
	defer h.registry.UnregisterGlobal(client, user.ID)
	defer client.Close()

	h.log.Info().Stringer("user_id", user.ID).Msg("global connection admitted")

	h.runLoops(ctx, conn, client, func(ctx context.Context) error {
		return h.globalReadLoop(ctx, conn)
	})
}

// rejectConn reports a handshake failure and closes with a policy
// violation so a half-admitted connection never reaches the registry.
func (h *WSHandler) rejectConn(ctx context.Context, conn *websocket.Conn, err error) {
	_ = wsjson.Write(ctx, conn, errorFrame(err))
	reason := core.ErrorCode(err)
	if reason == "" {
		reason = "handshake failed"
	}
	conn.Close(websocket.StatusPolicyViolation, reason)
	h.log.Warn().Err(err).Msg("ws handshake rejected")
}

// runLoops runs the read and write loops until either fails, then tears
// both down and closes the websocket with an appropriate status.
func (h *WSHandler) runLoops(ctx context.Context, conn *websocket.Conn, client *wsClient, read func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- guardPanic(ctx, read)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err := <-errCh
	cancel() // stop the other goroutine
	client.Close()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			// report to the peer if still writable before closing
			_ = wsjson.Write(ctx, conn, proto.Error{Error: reason})
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// guardPanic converts a read-loop panic into an error so the connection
// is torn down and unregistered instead of crashing the process.
func guardPanic(ctx context.Context, read func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read loop panic: %v", r)
		}
	}()
	return read(ctx)
}

// chatReadLoop feeds inbound text frames into the delivery pipeline.
// Domain errors are reported to this connection and the loop continues;
// transport errors end the connection.
func (h *WSHandler) chatReadLoop(ctx context.Context, conn *websocket.Conn, userID, chatID uuid.UUID) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if _, err := h.delivery.CreateAndDeliver(ctx, userID, chatID, inbound.Text); err != nil {
			if core.ErrorCode(err) == "" {
				h.log.Error().Err(err).Stringer("user_id", userID).Stringer("chat_id", chatID).Msg("deliver failed")
			}
			if writeErr := wsjson.Write(ctx, conn, errorFrame(err)); writeErr != nil {
				return writeErr
			}
		}
	}
}

// globalReadLoop drains the connection so disconnects are observed, and
// rejects any client-originated frame: the global channel is read-only.
func (h *WSHandler) globalReadLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, proto.Error{
			Error: "global channel is read-only",
			Code:  core.ErrCodeBadRequest,
		}); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) error {
	for {
		select {
		case event := <-client.events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-client.done:
			// handle replaced by a reconnect or closed on shutdown
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
