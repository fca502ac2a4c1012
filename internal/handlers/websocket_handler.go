package handlers

import (
	"log"
	"os"

	"github.com/gofiber/websocket/v2"

	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/handlers/ws"
	"github.com/amjacademy/messaging-backend/internal/service"
)

type WebSocketHandler struct {
	conversationService *service.ConversationService
	messageService      *service.MessageService
	presenceService     *service.PresenceService
	broker              *fanout.Broker
}

func NewWebSocketHandler(conversationService *service.ConversationService, messageService *service.MessageService, presenceService *service.PresenceService, broker *fanout.Broker) *WebSocketHandler {
	return &WebSocketHandler{
		conversationService: conversationService,
		messageService:      messageService,
		presenceService:     presenceService,
		broker:              broker,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID := c.Locals("userID").(uint)
	wsDebug := os.Getenv("WS_DEBUG") == "true"

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	client := ws.NewClient(userID, c, supportsGzip)
	sub := h.broker.Subscribe(userID, client)

	defer func() {
		sub.Close()
		client.Close()
	}()

	// Connecting counts as a heartbeat; the client keeps the window open
	// with heartbeat frames from here on.
	go func() {
		if err := h.presenceService.Heartbeat(userID); err != nil {
			log.Printf("Failed to record connect heartbeat for user %d: %v", userID, err)
		}
	}()

	// Drain events queued while the user was offline.
	go func() {
		if err := h.broker.FlushPending(sub); err != nil {
			log.Printf("Failed to flush pending events for user %d: %v", userID, err)
		}
	}()

	log.Printf("User %d connected via WebSocket", userID)

	ctx := &ws.MessageContext{
		UserID:              userID,
		Conn:                client,
		Sub:                 sub,
		ConversationService: h.conversationService,
		MessageService:      h.messageService,
		PresenceService:     h.presenceService,
	}

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Printf("Error reading message from user %d: %v", userID, err)
			break
		}

		if wsDebug {
			log.Printf("ws_recv user_id=%d frame_type=%d size=%d", userID, messageType, len(messageBytes))
		}

		// Decompress if binary message (gzip compressed)
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.DecompressMessage(messageBytes)
			if err != nil {
				log.Printf("Error decompressing message from user %d: %v", userID, err)
				ws.SendError(client, "decompression_failed", "Failed to decompress message", err.Error())
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			log.Printf("Error deserializing message from user %d: %v", userID, err)
			ws.SendError(client, "invalid_message", "Invalid message format", err.Error())
			continue
		}

		if err := msg.Process(ctx); err != nil {
			log.Printf("Error processing message %s from user %d: %v", msg.GetType(), userID, err)
			ws.SendError(client, "processing_failed", "Failed to process message", err.Error())
		}
	}

	log.Printf("User %d disconnected from WebSocket", userID)
}
