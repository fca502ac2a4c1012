package ws

// MessageDelivered acknowledges transport receipt of a single message.
// Repeats are harmless; the first acknowledgement wins.
type MessageDelivered struct {
	MessageID uint `json:"message_id"`
}

func (msg *MessageDelivered) GetType() string {
	return "delivered"
}

func (msg *MessageDelivered) Process(ctx *MessageContext) error {
	return ctx.MessageService.MarkDelivered(msg.MessageID, ctx.UserID)
}

// MessageRead advances the reader's cursor. Everything at or before the
// named message becomes read in one step.
type MessageRead struct {
	ConversationID    uint `json:"conversation_id"`
	LastReadMessageID uint `json:"last_read_message_id"`
}

func (msg *MessageRead) GetType() string {
	return "read"
}

func (msg *MessageRead) Process(ctx *MessageContext) error {
	updated, err := ctx.MessageService.MarkReadUpTo(msg.ConversationID, ctx.UserID, msg.LastReadMessageID)
	if err != nil {
		return err
	}
	return ctx.Conn.WriteJSON(map[string]interface{}{
		"type":            "read_ack",
		"conversation_id": msg.ConversationID,
		"updated":         updated,
	})
}
