package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/amjacademy/messaging-backend/internal/httpx"
	"github.com/amjacademy/messaging-backend/internal/models"
	"github.com/amjacademy/messaging-backend/internal/service"
)

type ConversationHandler struct {
	conversationService *service.ConversationService
}

func NewConversationHandler(conversationService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

type getOrCreateConversationInput struct {
	PeerID uint `json:"peer_id"`
}

// GetOrCreateConversation resolves the caller's conversation with a peer.
// Calling it twice, or from both sides at once, yields the same id.
func (h *ConversationHandler) GetOrCreateConversation(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	role := models.ParticipantRole(httpx.LocalString(c, "userRole"))

	var input getOrCreateConversationInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if input.PeerID == 0 {
		return httpx.BadRequest(c, "missing_peer", "peer_id is required")
	}

	conv, err := h.conversationService.GetOrCreate(userID, role, input.PeerID)
	if err != nil {
		return httpx.FromAppError(c, err)
	}

	return c.JSON(conv.ToResponse(userID))
}

// ListConversations returns the caller's conversation summaries, newest
// activity first, with last message and unread count per row.
func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	rows, err := h.conversationService.ListSummaries(userID, limit)
	if err != nil {
		return httpx.FromAppError(c, err)
	}

	out := make([]models.ConversationResponse, 0, len(rows))
	for _, row := range rows {
		resp := models.ConversationResponse{
			ID:          row.ConversationID,
			PeerID:      row.PeerID,
			CreatedAt:   row.ConvCreatedAt,
			UnreadCount: row.UnreadCount,
		}
		if row.MessageID != 0 && row.MessageCreatedAt != nil {
			resp.LastMessage = &models.MessageResponse{
				ID:             row.MessageID,
				ClientID:       row.MessageClientID,
				ConversationID: row.ConversationID,
				SenderID:       row.MessageSenderID,
				Content:        row.MessageContent,
				MessageType:    models.MessageType(row.MessageType),
				FileURL:        row.MessageFileURL,
				CreatedAt:      *row.MessageCreatedAt,
			}
		}
		out = append(out, resp)
	}

	return c.JSON(fiber.Map{"conversations": out})
}

// GetParticipants returns membership rows for one conversation.
func (h *ConversationHandler) GetParticipants(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	conversationID, err := c.ParamsInt("id")
	if err != nil || conversationID <= 0 {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}

	participants, err := h.conversationService.Participants(uint(conversationID), userID)
	if err != nil {
		return httpx.FromAppError(c, err)
	}

	return c.JSON(fiber.Map{"participants": participants})
}
