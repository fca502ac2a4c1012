package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/amjacademy/messaging-backend/internal/httpx"
	"github.com/amjacademy/messaging-backend/internal/models"
	"github.com/amjacademy/messaging-backend/internal/service"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// SendMessage appends one message. Retries carrying the same client_id get
// the original row back with a 200 instead of a second 201.
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	var input service.AppendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if input.ConversationID == 0 {
		return httpx.BadRequest(c, "missing_conversation", "conversation_id is required")
	}

	message, replay, err := h.messageService.Append(userID, input)
	if err != nil {
		return httpx.FromAppError(c, err)
	}

	status := fiber.StatusCreated
	if replay {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(message.ToResponse())
}

// GetMessages pages through a conversation in ascending (created_at, id)
// order. The cursor is the id of the last message the client already has.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	conversationID, err := c.ParamsInt("id")
	if err != nil || conversationID <= 0 {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	var cursorID uint
	if cursorStr := c.Query("cursor"); cursorStr != "" {
		cursor, err := strconv.ParseUint(cursorStr, 10, 32)
		if err != nil {
			return httpx.BadRequest(c, "invalid_cursor", "Invalid cursor")
		}
		cursorID = uint(cursor)
	}

	messages, err := h.messageService.List(uint(conversationID), userID, cursorID, limit)
	if err != nil {
		return httpx.FromAppError(c, err)
	}

	responses := make([]models.MessageResponse, 0, len(messages))
	for i := range messages {
		responses = append(responses, messages[i].ToResponse())
	}
	return c.JSON(fiber.Map{"messages": responses})
}

// GetMessage fetches a single message, used when a status event references
// an id the client has not seen yet.
func (h *MessageHandler) GetMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	messageID, err := c.ParamsInt("id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message", "Invalid message id")
	}

	message, err := h.messageService.Get(uint(messageID), userID)
	if err != nil {
		return httpx.FromAppError(c, err)
	}
	return c.JSON(message.ToResponse())
}

// MarkDelivered records transport receipt of one message for the caller.
func (h *MessageHandler) MarkDelivered(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	messageID, err := c.ParamsInt("id")
	if err != nil || messageID <= 0 {
		return httpx.BadRequest(c, "invalid_message", "Invalid message id")
	}

	if err := h.messageService.MarkDelivered(uint(messageID), userID); err != nil {
		return httpx.FromAppError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type markReadInput struct {
	LastReadMessageID uint `json:"last_read_message_id"`
}

// MarkRead advances the caller's read cursor in one conversation. Everything
// at or before the named message becomes read.
func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	conversationID, err := c.ParamsInt("id")
	if err != nil || conversationID <= 0 {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}

	var input markReadInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if input.LastReadMessageID == 0 {
		return httpx.BadRequest(c, "missing_cursor", "last_read_message_id is required")
	}

	updated, err := h.messageService.MarkReadUpTo(uint(conversationID), userID, input.LastReadMessageID)
	if err != nil {
		return httpx.FromAppError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updated": updated})
}

// GetUnreadCount returns per-conversation unread counts plus the total,
// computed in one aggregate pass.
func (h *MessageHandler) GetUnreadCount(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	byConversation, err := h.messageService.UnreadByConversation(userID)
	if err != nil {
		return httpx.FromAppError(c, err)
	}

	var total int64
	counts := make(map[string]int64, len(byConversation))
	for convID, n := range byConversation {
		counts[strconv.FormatUint(uint64(convID), 10)] = n
		total += n
	}

	return c.JSON(fiber.Map{
		"total":         total,
		"conversations": counts,
	})
}
