package service

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/amjacademy/messaging-backend/internal/models"
	"github.com/amjacademy/messaging-backend/internal/repository"
)

// MockConversationRepository is an in-memory ConversationRepository. A mutex
// guards it so the get-or-create race test can hit it from goroutines.
type MockConversationRepository struct {
	mu           sync.Mutex
	convs        map[uint]*models.Conversation
	participants map[uint]map[uint]*models.Participant
	nextID       uint
}

func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{
		convs:        make(map[uint]*models.Conversation),
		participants: make(map[uint]map[uint]*models.Participant),
		nextID:       1,
	}
}

func (m *MockConversationRepository) GetOrCreate(userA uint, roleA models.ParticipantRole, userB uint, roleB models.ParticipantRole) (*models.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	low, high := models.SortPair(userA, userB)
	for _, conv := range m.convs {
		if conv.UserLow == low && conv.UserHigh == high {
			return conv, false, nil
		}
	}

	conv := &models.Conversation{
		ID:        m.nextID,
		UserLow:   low,
		UserHigh:  high,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.nextID++
	m.convs[conv.ID] = conv
	m.participants[conv.ID] = map[uint]*models.Participant{
		userA: {ConversationID: conv.ID, UserID: userA, Role: roleA},
		userB: {ConversationID: conv.ID, UserID: userB, Role: roleB},
	}
	return conv, true, nil
}

func (m *MockConversationRepository) FindByID(id uint) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[id]; ok {
		return conv, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) FindByPair(userA, userB uint) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	low, high := models.SortPair(userA, userB)
	for _, conv := range m.convs {
		if conv.UserLow == low && conv.UserHigh == high {
			return conv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) ListForUser(userID uint) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, conv := range m.convs {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (m *MockConversationRepository) GetParticipant(conversationID, userID uint) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps, ok := m.participants[conversationID]; ok {
		if p, ok := ps[userID]; ok {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) ListParticipants(conversationID uint) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Participant
	for _, p := range m.participants[conversationID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MockConversationRepository) SetTyping(conversationID, userID uint, isTyping bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps, ok := m.participants[conversationID]; ok {
		if p, ok := ps[userID]; ok {
			p.IsTyping = isTyping
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) AdvanceReadCursor(conversationID, userID, lastReadMessageID uint, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps, ok := m.participants[conversationID]; ok {
		if p, ok := ps[userID]; ok {
			if lastReadMessageID > p.LastReadMessageID {
				p.LastReadMessageID = lastReadMessageID
				at := readAt
				p.LastReadAt = &at
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type statusKey struct {
	messageID uint
	userID    uint
}

// MockMessageRepository is an in-memory append-only message log. It owns the
// status rows too so Append can create them in the same step, mirroring the
// transactional write.
type MockMessageRepository struct {
	mu       sync.Mutex
	messages map[uint]*models.Message
	statuses map[statusKey]*models.MessageStatus
	nextID   uint
	now      time.Time
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{
		messages: make(map[uint]*models.Message),
		statuses: make(map[statusKey]*models.MessageStatus),
		nextID:   1,
	}
}

// AdvanceClock shifts the timestamp assigned to subsequent appends, so tests
// can model messages arriving at distinct times.
func (m *MockMessageRepository) AdvanceClock(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.now.IsZero() {
		m.now = time.Now().UTC()
	}
	m.now = m.now.Add(d)
}

func (m *MockMessageRepository) Append(message *models.Message, recipientIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.messages {
		if existing.ClientID == message.ClientID && existing.SenderID == message.SenderID {
			return gorm.ErrDuplicatedKey
		}
	}

	if message.ID == 0 {
		message.ID = m.nextID
		m.nextID++
	}
	if m.now.IsZero() {
		m.now = time.Now().UTC()
	}
	message.CreatedAt = m.now
	m.messages[message.ID] = message

	for _, rid := range recipientIDs {
		if rid == message.SenderID {
			continue
		}
		m.statuses[statusKey{message.ID, rid}] = &models.MessageStatus{
			MessageID: message.ID,
			UserID:    rid,
		}
	}
	return nil
}

func (m *MockMessageRepository) FindByID(id uint) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[id]; ok {
		return msg, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockMessageRepository) FindByClientID(clientID string, senderID uint) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ClientID == clientID && msg.SenderID == senderID {
			return msg, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockMessageRepository) List(conversationID uint, cursorCreatedAt *time.Time, cursorID uint, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if cursorCreatedAt != nil {
			if msg.CreatedAt.Before(*cursorCreatedAt) {
				continue
			}
			if msg.CreatedAt.Equal(*cursorCreatedAt) && msg.ID <= cursorID {
				continue
			}
		}
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockMessageRepository) LatestInConversation(conversationID uint) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if latest == nil || msg.CreatedAt.After(latest.CreatedAt) ||
			(msg.CreatedAt.Equal(latest.CreatedAt) && msg.ID > latest.ID) {
			latest = msg
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (m *MockMessageRepository) ListConversationSummaries(userID uint, limit int) ([]repository.ConversationSummaryRow, error) {
	return []repository.ConversationSummaryRow{}, nil
}

// MockStatusRepository reads and writes the status rows owned by the
// message mock. Setting deliveredErr makes MarkDelivered fail.
type MockStatusRepository struct {
	msgs         *MockMessageRepository
	deliveredErr error
}

func NewMockStatusRepository(msgs *MockMessageRepository) *MockStatusRepository {
	return &MockStatusRepository{msgs: msgs}
}

func (m *MockStatusRepository) Find(messageID, userID uint) (*models.MessageStatus, error) {
	m.msgs.mu.Lock()
	defer m.msgs.mu.Unlock()
	if st, ok := m.msgs.statuses[statusKey{messageID, userID}]; ok {
		return st, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockStatusRepository) ListForMessage(messageID uint) ([]models.MessageStatus, error) {
	m.msgs.mu.Lock()
	defer m.msgs.mu.Unlock()
	var out []models.MessageStatus
	for key, st := range m.msgs.statuses {
		if key.messageID == messageID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (m *MockStatusRepository) MarkDelivered(messageID, userID uint, at time.Time) (bool, error) {
	m.msgs.mu.Lock()
	defer m.msgs.mu.Unlock()
	if m.deliveredErr != nil {
		return false, m.deliveredErr
	}
	st, ok := m.msgs.statuses[statusKey{messageID, userID}]
	if !ok {
		return false, nil
	}
	if st.DeliveredAt == nil {
		t := at
		st.DeliveredAt = &t
	}
	return true, nil
}

func (m *MockStatusRepository) MarkReadUpTo(conversationID, userID, cursorMessageID uint, at time.Time) ([]uint, error) {
	m.msgs.mu.Lock()
	defer m.msgs.mu.Unlock()

	cursor, ok := m.msgs.messages[cursorMessageID]
	if !ok || cursor.ConversationID != conversationID {
		return nil, gorm.ErrRecordNotFound
	}

	var readIDs []uint
	for key, st := range m.msgs.statuses {
		if key.userID != userID || st.ReadAt != nil {
			continue
		}
		msg, ok := m.msgs.messages[key.messageID]
		if !ok || msg.ConversationID != conversationID {
			continue
		}
		if msg.CreatedAt.After(cursor.CreatedAt) {
			continue
		}
		if msg.CreatedAt.Equal(cursor.CreatedAt) && msg.ID > cursor.ID {
			continue
		}
		t := at
		st.ReadAt = &t
		if st.DeliveredAt == nil {
			st.DeliveredAt = &t
		}
		readIDs = append(readIDs, key.messageID)
	}
	sort.Slice(readIDs, func(i, j int) bool { return readIDs[i] < readIDs[j] })
	return readIDs, nil
}

func (m *MockStatusRepository) CountUnread(conversationID, userID uint) (int64, error) {
	m.msgs.mu.Lock()
	defer m.msgs.mu.Unlock()
	var count int64
	for key, st := range m.msgs.statuses {
		if key.userID != userID || st.ReadAt != nil {
			continue
		}
		if msg, ok := m.msgs.messages[key.messageID]; ok && msg.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

func (m *MockStatusRepository) CountUnreadByConversation(userID uint) (map[uint]int64, error) {
	m.msgs.mu.Lock()
	defer m.msgs.mu.Unlock()
	counts := make(map[uint]int64)
	for key, st := range m.msgs.statuses {
		if key.userID != userID || st.ReadAt != nil {
			continue
		}
		if msg, ok := m.msgs.messages[key.messageID]; ok {
			counts[msg.ConversationID]++
		}
	}
	return counts, nil
}

func (m *MockStatusRepository) CountUnreadTotal(userID uint) (int64, error) {
	counts, err := m.CountUnreadByConversation(userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// MockPresenceRepository is an in-memory heartbeat store.
type MockPresenceRepository struct {
	mu        sync.Mutex
	presences map[uint]*models.Presence
}

func NewMockPresenceRepository() *MockPresenceRepository {
	return &MockPresenceRepository{presences: make(map[uint]*models.Presence)}
}

func (m *MockPresenceRepository) Heartbeat(userID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presences[userID] = &models.Presence{UserID: userID, LastSeenAt: at}
	return nil
}

func (m *MockPresenceRepository) Find(userID uint) (*models.Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.presences[userID]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}
