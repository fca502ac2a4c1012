package ws

// MessageSubscribe opens a conversation channel on this connection. The
// global user channel is implicit; this only gates conversation-scoped
// events (message inserts, status changes, typing).
type MessageSubscribe struct {
	ConversationID uint `json:"conversation_id"`
}

func (msg *MessageSubscribe) GetType() string {
	return "subscribe"
}

func (msg *MessageSubscribe) Process(ctx *MessageContext) error {
	// Membership check doubles as existence check.
	if _, err := ctx.ConversationService.Get(msg.ConversationID, ctx.UserID); err != nil {
		return err
	}
	ctx.Sub.Join(msg.ConversationID)
	return ctx.Conn.WriteJSON(map[string]interface{}{
		"type":            "subscribed",
		"conversation_id": msg.ConversationID,
	})
}

// MessageUnsubscribe closes a conversation channel on this connection.
type MessageUnsubscribe struct {
	ConversationID uint `json:"conversation_id"`
}

func (msg *MessageUnsubscribe) GetType() string {
	return "unsubscribe"
}

func (msg *MessageUnsubscribe) Process(ctx *MessageContext) error {
	ctx.Sub.Leave(msg.ConversationID)
	return nil
}
