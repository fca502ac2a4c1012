package service

import (
	"os"
	"strconv"
	"time"

	"github.com/amjacademy/messaging-backend/internal/apperrors"
	"github.com/amjacademy/messaging-backend/internal/cache"
	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/models"
	"github.com/amjacademy/messaging-backend/internal/repository"
)

const (
	// DefaultOnlineTTL must exceed the client heartbeat interval (~5s) with
	// margin for jitter.
	DefaultOnlineTTL = 10 * time.Second
)

// OnlineTTL reads the presence window from the environment, falling back to
// the default.
func OnlineTTL() time.Duration {
	s := os.Getenv("PRESENCE_TTL_SECONDS")
	if s == "" {
		return DefaultOnlineTTL
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs < 1 {
		return DefaultOnlineTTL
	}
	return time.Duration(secs) * time.Second
}

type PresenceService struct {
	presenceRepo  repository.PresenceRepositoryInterface
	convRepo      repository.ConversationRepositoryInterface
	presenceCache *cache.PresenceCache
	broker        *fanout.Broker
	ttl           time.Duration
	now           func() time.Time
}

func NewPresenceService(presenceRepo repository.PresenceRepositoryInterface, convRepo repository.ConversationRepositoryInterface, presenceCache *cache.PresenceCache, broker *fanout.Broker, ttl time.Duration) *PresenceService {
	if ttl <= 0 {
		ttl = DefaultOnlineTTL
	}
	return &PresenceService{
		presenceRepo:  presenceRepo,
		convRepo:      convRepo,
		presenceCache: presenceCache,
		broker:        broker,
		ttl:           ttl,
		now:           time.Now,
	}
}

// Heartbeat overwrites the user's last_seen_at and refreshes the Redis
// online key. The change is pushed to the conversation channels the user
// belongs to; it is ephemeral, so nothing is queued for absent peers.
func (s *PresenceService) Heartbeat(userID uint) error {
	at := s.now().UTC()
	if err := s.presenceRepo.Heartbeat(userID, at); err != nil {
		return apperrors.Internal("record heartbeat", err)
	}
	_ = s.presenceCache.Heartbeat(userID)

	if s.broker != nil {
		convs, err := s.convRepo.ListForUser(userID)
		if err != nil {
			return nil
		}
		for _, conv := range convs {
			s.broker.PublishToConversation(conv.ID, &fanout.Event{
				Kind:           fanout.KindPresenceChanged,
				ConversationID: conv.ID,
				UserID:         userID,
				Payload: fanout.PresenceChangedPayload{
					UserID:         userID,
					ConversationID: conv.ID,
					LastSeenAt:     at.Format(time.RFC3339Nano),
				},
			})
		}
	}
	return nil
}

// SetTyping stores exactly the last typing signal received. Debounce and
// expiry are the client's job; the server never clears the flag on a timer,
// so a crashed client leaves it stale until the next signal.
func (s *PresenceService) SetTyping(conversationID, userID uint, isTyping bool) error {
	if err := s.convRepo.SetTyping(conversationID, userID, isTyping); err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NotFound("not a participant of this conversation")
		}
		return apperrors.Internal("set typing", err)
	}

	if s.broker != nil {
		s.broker.PublishToConversation(conversationID, &fanout.Event{
			Kind:           fanout.KindPresenceChanged,
			ConversationID: conversationID,
			UserID:         userID,
			Payload: fanout.PresenceChangedPayload{
				UserID:         userID,
				ConversationID: conversationID,
				IsTyping:       isTyping,
			},
		})
	}
	return nil
}

// Get reports whether the user is online (heartbeat younger than the TTL,
// computed lazily at read time) and when they were last seen.
func (s *PresenceService) Get(userID uint) (models.PresenceResponse, error) {
	p, err := s.presenceRepo.Find(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			// Never heartbeated: offline, no last-seen.
			return models.PresenceResponse{UserID: userID}, nil
		}
		return models.PresenceResponse{}, apperrors.Internal("find presence", err)
	}
	return p.ToResponse(s.now(), s.ttl), nil
}

// IsOnline answers from the Redis TTL key when available and falls back to
// the heartbeat row.
func (s *PresenceService) IsOnline(userID uint) (bool, error) {
	if online, ok := s.presenceCache.IsOnline(userID); ok {
		return online, nil
	}
	p, err := s.presenceRepo.Find(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, apperrors.Internal("find presence", err)
	}
	return p.Online(s.now(), s.ttl), nil
}
