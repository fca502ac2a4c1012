package service

import (
	"github.com/amjacademy/messaging-backend/internal/apperrors"
	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/models"
	"github.com/amjacademy/messaging-backend/internal/repository"
)

type ConversationService struct {
	convRepo    repository.ConversationRepositoryInterface
	messageRepo repository.MessageRepositoryInterface
	broker      *fanout.Broker
}

func NewConversationService(convRepo repository.ConversationRepositoryInterface, messageRepo repository.MessageRepositoryInterface, broker *fanout.Broker) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		broker:      broker,
	}
}

// GetOrCreate resolves the single conversation between caller and peer,
// creating it on first contact. The store's unique pair index absorbs the
// creation race, so concurrent callers always converge on one id and no
// conflict ever surfaces to the caller. Eligibility of the pair is the
// directory service's concern and is trusted as a precondition here.
func (s *ConversationService) GetOrCreate(callerID uint, callerRole models.ParticipantRole, peerID uint) (*models.Conversation, error) {
	if peerID == 0 || peerID == callerID {
		return nil, apperrors.InvalidArg("peer_id must reference another user")
	}

	peerRole := models.RoleTeacher
	if callerRole == models.RoleTeacher {
		peerRole = models.RoleStudent
	}

	conv, created, err := s.convRepo.GetOrCreate(callerID, callerRole, peerID, peerRole)
	if err != nil {
		return nil, apperrors.Internal("get or create conversation", err)
	}

	if created && s.broker != nil {
		ev := &fanout.Event{
			Kind:           fanout.KindConversationCreated,
			ConversationID: conv.ID,
			UserID:         callerID,
			Payload:        conv.ToResponse(peerID),
		}
		s.broker.PublishToUser(peerID, ev)
		s.broker.PublishToUser(callerID, ev)
	}

	return conv, nil
}

// Get returns the conversation when the viewer belongs to it.
func (s *ConversationService) Get(conversationID, viewerID uint) (*models.Conversation, error) {
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
	return conv, nil
}

// Participants lists membership rows (roles, typing flags, read cursors) for
// a conversation the viewer belongs to.
func (s *ConversationService) Participants(conversationID, viewerID uint) ([]models.Participant, error) {
	if _, err := s.Get(conversationID, viewerID); err != nil {
		return nil, err
	}
	ps, err := s.convRepo.ListParticipants(conversationID)
	if err != nil {
		return nil, apperrors.Internal("list participants", err)
	}
	return ps, nil
}

// ListSummaries returns the viewer's conversations with last message and
// unread count, one query behind it.
func (s *ConversationService) ListSummaries(viewerID uint, limit int) ([]repository.ConversationSummaryRow, error) {
	rows, err := s.messageRepo.ListConversationSummaries(viewerID, limit)
	if err != nil {
		return nil, apperrors.Internal("list conversations", err)
	}
	return rows, nil
}
