package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/amjacademy/messaging-backend/internal/httpx"
	"github.com/amjacademy/messaging-backend/internal/service"
)

type PresenceHandler struct {
	presenceService *service.PresenceService
}

func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// Heartbeat refreshes the caller's presence window. Clients on the HTTP
// fallback call it on the same cadence as the socket heartbeat frame.
func (h *PresenceHandler) Heartbeat(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	if err := h.presenceService.Heartbeat(userID); err != nil {
		return httpx.FromAppError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetPresence reports whether a user is online, computed lazily from the
// last heartbeat. Never-seen users read as offline with no last_seen.
func (h *PresenceHandler) GetPresence(c *fiber.Ctx) error {
	if _, err := httpx.LocalUint(c, "userID"); err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	targetID, err := c.ParamsInt("id")
	if err != nil || targetID <= 0 {
		return httpx.BadRequest(c, "invalid_user", "Invalid user id")
	}

	presence, err := h.presenceService.Get(uint(targetID))
	if err != nil {
		return httpx.FromAppError(c, err)
	}
	return c.JSON(presence)
}

type typingInput struct {
	IsTyping bool `json:"is_typing"`
}

// SetTyping stores and broadcasts the caller's latest typing signal. The
// flag holds until the opposite signal arrives; readers judge staleness.
func (h *PresenceHandler) SetTyping(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	conversationID, err := c.ParamsInt("id")
	if err != nil || conversationID <= 0 {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}

	var input typingInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	if err := h.presenceService.SetTyping(uint(conversationID), userID, input.IsTyping); err != nil {
		return httpx.FromAppError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
