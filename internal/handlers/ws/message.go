package ws

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/service"
)

// MessageContext provides all dependencies needed for frame processing.
// Conn is the wrapped client so handler replies share the write mutex with
// broker deliveries.
type MessageContext struct {
	UserID              uint
	Conn                *Client
	Sub                 *fanout.Subscription
	ConversationService *service.ConversationService
	MessageService      *service.MessageService
	PresenceService     *service.PresenceService
}

// Message interface for all WebSocket frame types.
type Message interface {
	GetType() string
	Process(ctx *MessageContext) error
}

// SerializedMessage is the wire format wrapper.
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorResponse is sent when frame processing fails.
type ErrorResponse struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func ToJson(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func FromJson(jsonBytes []byte, msg Message) error {
	return json.Unmarshal(jsonBytes, msg)
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}

// SendError sends an error response to the client
func SendError(conn *Client, code, message, details string) error {
	errResp := ErrorResponse{
		Type:    "error",
		Error:   message,
		Code:    code,
		Details: details,
	}
	return conn.WriteJSON(errResp)
}
