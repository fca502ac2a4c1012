package ws

// MessageTyping broadcasts the sender's latest typing signal to the
// conversation. The flag holds until the client sends the opposite signal.
type MessageTyping struct {
	ConversationID uint `json:"conversation_id"`
	IsTyping       bool `json:"is_typing"`
}

func (msg *MessageTyping) GetType() string {
	return "typing"
}

func (msg *MessageTyping) Process(ctx *MessageContext) error {
	return ctx.PresenceService.SetTyping(msg.ConversationID, ctx.UserID, msg.IsTyping)
}

// MessageHeartbeat refreshes the sender's presence window.
type MessageHeartbeat struct{}

func (msg *MessageHeartbeat) GetType() string {
	return "heartbeat"
}

func (msg *MessageHeartbeat) Process(ctx *MessageContext) error {
	return ctx.PresenceService.Heartbeat(ctx.UserID)
}
