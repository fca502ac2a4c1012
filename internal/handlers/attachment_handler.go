package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/amjacademy/messaging-backend/internal/httpx"
	"github.com/amjacademy/messaging-backend/internal/service"
	"github.com/amjacademy/messaging-backend/internal/storage"
)

const uploadSlotExpiry = 15 * time.Minute

// AttachmentHandler hands out presigned upload slots. The server never
// relays attachment bytes; clients upload straight to the object store and
// then send a message carrying the resulting URL.
type AttachmentHandler struct {
	conversationService *service.ConversationService
	store               *storage.S3Storage
}

func NewAttachmentHandler(conversationService *service.ConversationService, store *storage.S3Storage) *AttachmentHandler {
	return &AttachmentHandler{
		conversationService: conversationService,
		store:               store,
	}
}

type presignUploadInput struct {
	ConversationID uint   `json:"conversation_id"`
	FileName       string `json:"file_name"`
}

func (h *AttachmentHandler) PresignUpload(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	if h.store == nil {
		return httpx.Error(c, fiber.StatusServiceUnavailable, "storage_unavailable", "Attachment storage is not configured")
	}

	var input presignUploadInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if input.ConversationID == 0 {
		return httpx.BadRequest(c, "missing_conversation", "conversation_id is required")
	}
	if input.FileName == "" {
		return httpx.BadRequest(c, "missing_file_name", "file_name is required")
	}

	if _, err := h.conversationService.Get(input.ConversationID, userID); err != nil {
		return httpx.FromAppError(c, err)
	}

	slot, err := h.store.PresignUpload(c.Context(), input.ConversationID, input.FileName, uploadSlotExpiry)
	if err != nil {
		return httpx.BadRequest(c, "presign_failed", err.Error())
	}
	return c.JSON(slot)
}
