package ws

import (
	"github.com/amjacademy/messaging-backend/internal/service"
)

// MessageChat appends a message over the socket. It carries the same fields
// as the HTTP append endpoint so clients can use either transport.
type MessageChat struct {
	service.AppendMessageInput
}

func (msg *MessageChat) GetType() string {
	return "chat"
}

func (msg *MessageChat) Process(ctx *MessageContext) error {
	message, replay, err := ctx.MessageService.Append(ctx.UserID, msg.AppendMessageInput)
	if err != nil {
		return err
	}

	// The ack echoes client_id so the sender can reconcile its optimistic
	// entry. The authoritative copy arrives on the conversation channel.
	return ctx.Conn.WriteJSON(map[string]interface{}{
		"type":       "chat_ack",
		"client_id":  message.ClientID,
		"message_id": message.ID,
		"created_at": message.CreatedAt,
		"replay":     replay,
	})
}
