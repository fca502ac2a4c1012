package ws

// MessagePing is an application-level keepalive. Browsers cannot send
// protocol-level ping frames, so clients poll liveness with this instead.
type MessagePing struct {
}

func (msg *MessagePing) GetType() string {
	return "ping"
}

func (msg *MessagePing) Process(ctx *MessageContext) error {
	return ctx.Conn.WriteJSON(map[string]string{
		"type": "pong",
	})
}

// MessagePong acknowledges a server ping. The server keys liveness off the
// protocol-level pong handler, so nothing happens here.
type MessagePong struct {
}

func (msg *MessagePong) GetType() string {
	return "pong"
}

func (msg *MessagePong) Process(ctx *MessageContext) error {
	return nil
}
