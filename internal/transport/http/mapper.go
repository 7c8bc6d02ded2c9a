package http

import (
	"messenger/internal/core"
	"messenger/internal/proto"
)

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type: proto.FrameTypeMessage,
			Data: proto.MessageData{
				ID:         event.Message.ID.String(),
				ChatID:     event.Message.ChatID.String(),
				SenderID:   event.Message.SenderID.String(),
				SenderName: event.Message.SenderName,
				Text:       event.Message.Text,
				Timestamp:  event.Message.Timestamp,
				IsRead:     event.Message.IsRead,
			},
		}
	case core.EventRead:
		return proto.Outbound{
			Type: proto.FrameTypeRead,
			Data: proto.ReadData{
				MessageID: event.Read.MessageID.String(),
				ChatID:    event.Read.ChatID.String(),
			},
		}
	default:
		return proto.Outbound{Type: proto.FrameTypeMessage}
	}
}

func errorFrame(err error) proto.Error {
	return proto.Error{
		Error: err.Error(),
		Code:  core.ErrorCode(err),
	}
}
