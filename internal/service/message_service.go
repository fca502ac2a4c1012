package service

import (
	"log"
	"time"

	"github.com/amjacademy/messaging-backend/internal/apperrors"
	"github.com/amjacademy/messaging-backend/internal/cache"
	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/metrics"
	"github.com/amjacademy/messaging-backend/internal/models"
	"github.com/amjacademy/messaging-backend/internal/repository"
	"github.com/amjacademy/messaging-backend/internal/validation"
)

type MessageService struct {
	messageRepo repository.MessageRepositoryInterface
	convRepo    repository.ConversationRepositoryInterface
	statusRepo  repository.StatusRepositoryInterface
	broker      *fanout.Broker
	unreadCache *cache.UnreadCache
}

func NewMessageService(messageRepo repository.MessageRepositoryInterface, convRepo repository.ConversationRepositoryInterface, statusRepo repository.StatusRepositoryInterface, broker *fanout.Broker, unreadCache *cache.UnreadCache) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		statusRepo:  statusRepo,
		broker:      broker,
		unreadCache: unreadCache,
	}
}

type AppendMessageInput struct {
	ConversationID uint               `json:"conversation_id"`
	ClientID       string             `json:"client_id"`
	Content        string             `json:"content"`
	MessageType    models.MessageType `json:"message_type"`
	FileURL        string             `json:"file_url"`
	ThumbnailURL   string             `json:"thumbnail_url"`
	FileName       string             `json:"file_name"`
	FileSize       int64              `json:"file_size"`
}

// Append validates and stores one immutable message together with its
// per-recipient status rows, then fans the insert out. A retry carrying the
// same client_id returns the original message unchanged (the bool result is
// true for such replays).
func (s *MessageService) Append(senderID uint, input AppendMessageInput) (*models.Message, bool, error) {
	start := time.Now()

	if input.MessageType == "" {
		input.MessageType = models.TextMessage
	}
	if !validation.ValidMessageType(input.MessageType) {
		return nil, false, apperrors.InvalidArg("unknown message type")
	}
	if !validation.ValidClientID(input.ClientID) {
		return nil, false, apperrors.InvalidArg("client_id is required")
	}
	input.Content = validation.TrimAndLimit(input.Content, validation.MaxMessageLength())
	if input.MessageType == models.TextMessage && input.Content == "" {
		return nil, false, apperrors.InvalidArg("content is required")
	}
	if validation.RequiresAttachment(input.MessageType) && !validation.ValidateFileURL(input.FileURL) {
		return nil, false, apperrors.InvalidArg("file_url is required for attachment messages")
	}

	conv, err := s.convRepo.FindByID(input.ConversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, false, apperrors.NotFound("conversation not found")
		}
		return nil, false, apperrors.Internal("find conversation", err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, false, apperrors.NotFound("conversation not found")
	}

	// Replay fast path.
	if existing, err := s.messageRepo.FindByClientID(input.ClientID, senderID); err == nil {
		return existing, true, nil
	} else if !repository.IsNotFound(err) {
		return nil, false, apperrors.Internal("check client id", err)
	}

	message := &models.Message{
		ClientID:       input.ClientID,
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        input.Content,
		MessageType:    input.MessageType,
		FileURL:        input.FileURL,
		ThumbnailURL:   input.ThumbnailURL,
		FileName:       input.FileName,
		FileSize:       input.FileSize,
	}

	recipientID := conv.PeerID(senderID)
	if err := s.messageRepo.Append(message, []uint{recipientID}); err != nil {
		// A concurrent retry may have won the unique (client_id, sender_id)
		// race; resolve it to the stored row instead of failing.
		if existing, ferr := s.messageRepo.FindByClientID(input.ClientID, senderID); ferr == nil {
			return existing, true, nil
		}
		return nil, false, apperrors.Internal("append message", err)
	}

	metrics.MessagesTotal.WithLabelValues(string(message.MessageType)).Inc()
	metrics.AppendLatency.Observe(time.Since(start).Seconds())

	_ = s.unreadCache.Invalidate(recipientID, conv.ID)

	if s.broker != nil {
		s.broker.PublishToConversation(conv.ID, &fanout.Event{
			Kind:           fanout.KindMessageCreated,
			ConversationID: conv.ID,
			UserID:         senderID,
			Payload:        message.ToResponse(),
		})
		s.broker.PublishToUser(recipientID, &fanout.Event{
			Kind:           fanout.KindMessageCreated,
			ConversationID: conv.ID,
			UserID:         senderID,
			Payload:        message.ToResponse(),
		})

		// Transport receipt: a recipient with a live subscription has the
		// message on the wire, so the status row flips to delivered here.
		// The append already succeeded, so a failed receipt is logged and
		// left for the recipient's explicit ack to repair.
		if s.broker.UserOnline(recipientID) {
			if err := s.markDelivered(message, recipientID); err != nil {
				log.Printf("message: mark delivered %d for user %d: %v", message.ID, recipientID, err)
			}
		}
	}

	return message, false, nil
}

// List pages a conversation ascending by (created_at, id); cursor is the id
// of the last message of the previous page.
func (s *MessageService) List(conversationID, viewerID, cursorID uint, limit int) ([]models.Message, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NotFound("conversation not found")
		}
		return nil, apperrors.Internal("find conversation", err)
	}
	if !conv.HasParticipant(viewerID) {
		return nil, apperrors.NotFound("conversation not found")
	}

	var cursorCreatedAt *time.Time
	if cursorID > 0 {
		cursorMsg, err := s.messageRepo.FindByID(cursorID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, apperrors.InvalidArg("unknown cursor")
			}
			return nil, apperrors.Internal("resolve cursor", err)
		}
		cursorCreatedAt = &cursorMsg.CreatedAt
	}

	messages, err := s.messageRepo.List(conversationID, cursorCreatedAt, cursorID, limit)
	if err != nil {
		return nil, apperrors.Internal("list messages", err)
	}
	return messages, nil
}

// Get returns one message visible to the viewer. Clients use it to re-fetch
// a message referenced by an out-of-order status event.
func (s *MessageService) Get(messageID, viewerID uint) (*models.Message, error) {
	message, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NotFound("message not found")
		}
		return nil, apperrors.Internal("find message", err)
	}
	conv, err := s.convRepo.FindByID(message.ConversationID)
	if err != nil {
		return nil, apperrors.Internal("find conversation", err)
	}
	if !conv.HasParticipant(viewerID) {
		return nil, apperrors.NotFound("message not found")
	}
	return message, nil
}

// MarkDelivered records transport receipt for one message/recipient pair.
// Re-invoking on a delivered or read message is a no-op, never an error.
func (s *MessageService) MarkDelivered(messageID, userID uint) error {
	message, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NotFound("message not found")
		}
		return apperrors.Internal("find message", err)
	}

	status, err := s.statusRepo.Find(messageID, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NotFound("no delivery state for this user")
		}
		return apperrors.Internal("find status", err)
	}
	if status.State() != models.StateSent {
		return nil
	}

	return s.markDelivered(message, userID)
}

func (s *MessageService) markDelivered(message *models.Message, userID uint) error {
	ok, err := s.statusRepo.MarkDelivered(message.ID, userID, time.Now().UTC())
	if err != nil {
		return apperrors.Internal("mark delivered", err)
	}
	if !ok {
		return apperrors.NotFound("no delivery state for this user")
	}

	if s.broker != nil {
		ev := &fanout.Event{
			Kind:           fanout.KindStatusChanged,
			ConversationID: message.ConversationID,
			UserID:         userID,
			Payload: fanout.StatusChangedPayload{
				MessageID: message.ID,
				UserID:    userID,
				NewState:  string(models.StateDelivered),
			},
		}
		s.broker.PublishToConversation(message.ConversationID, ev)
		s.broker.PublishToUser(message.SenderID, ev)
	}
	return nil
}

// MarkReadUpTo applies the canonical cursor policy: everything the peer sent
// at or before the cursor message flips to read, the participant's
// last_read_message_id advances, and one status event per newly-read message
// fans out. Replays find nothing unread and fall through as no-ops.
func (s *MessageService) MarkReadUpTo(conversationID, userID, cursorMessageID uint) (int, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, apperrors.NotFound("conversation not found")
		}
		return 0, apperrors.Internal("find conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return 0, apperrors.NotFound("conversation not found")
	}

	now := time.Now().UTC()
	readIDs, err := s.statusRepo.MarkReadUpTo(conversationID, userID, cursorMessageID, now)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, apperrors.NotFound("cursor message not found in conversation")
		}
		return 0, apperrors.Internal("mark read", err)
	}

	if err := s.convRepo.AdvanceReadCursor(conversationID, userID, cursorMessageID, now); err != nil {
		return 0, apperrors.Internal("advance read cursor", err)
	}

	_ = s.unreadCache.Invalidate(userID, conversationID)

	if s.broker != nil {
		peerID := conv.PeerID(userID)
		for _, id := range readIDs {
			ev := &fanout.Event{
				Kind:           fanout.KindStatusChanged,
				ConversationID: conversationID,
				UserID:         userID,
				Payload: fanout.StatusChangedPayload{
					MessageID: id,
					UserID:    userID,
					NewState:  string(models.StateRead),
				},
			}
			s.broker.PublishToConversation(conversationID, ev)
			s.broker.PublishToUser(peerID, ev)
		}
	}

	return len(readIDs), nil
}

// UnreadCount returns the viewer's unread count for one conversation.
func (s *MessageService) UnreadCount(conversationID, userID uint) (int64, error) {
	if count, ok := s.unreadCache.GetCount(userID, conversationID); ok {
		return count, nil
	}
	count, err := s.statusRepo.CountUnread(conversationID, userID)
	if err != nil {
		return 0, apperrors.Internal("count unread", err)
	}
	_ = s.unreadCache.SetCount(userID, conversationID, count)
	return count, nil
}

// TotalUnread returns the badge count across all conversations.
func (s *MessageService) TotalUnread(userID uint) (int64, error) {
	if count, ok := s.unreadCache.GetTotal(userID); ok {
		return count, nil
	}
	count, err := s.statusRepo.CountUnreadTotal(userID)
	if err != nil {
		return 0, apperrors.Internal("count unread", err)
	}
	_ = s.unreadCache.SetTotal(userID, count)
	return count, nil
}

// UnreadByConversation returns per-conversation unread counts in one query.
func (s *MessageService) UnreadByConversation(userID uint) (map[uint]int64, error) {
	counts, err := s.statusRepo.CountUnreadByConversation(userID)
	if err != nil {
		return nil, apperrors.Internal("count unread", err)
	}
	return counts, nil
}
