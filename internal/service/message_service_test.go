package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/amjacademy/messaging-backend/internal/apperrors"
	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/models"
)

type messageFixture struct {
	convRepo   *MockConversationRepository
	msgRepo    *MockMessageRepository
	statusRepo *MockStatusRepository
	broker     *fanout.Broker
	svc        *MessageService
	conv       *models.Conversation
}

// newMessageFixture wires a service over the in-memory mocks with one
// conversation between users 1 (student) and 2 (teacher).
func newMessageFixture(t *testing.T, broker *fanout.Broker) *messageFixture {
	t.Helper()

	convRepo := NewMockConversationRepository()
	msgRepo := NewMockMessageRepository()
	statusRepo := NewMockStatusRepository(msgRepo)

	conv, _, err := convRepo.GetOrCreate(1, models.RoleStudent, 2, models.RoleTeacher)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	return &messageFixture{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		statusRepo: statusRepo,
		broker:     broker,
		svc:        NewMessageService(msgRepo, convRepo, statusRepo, broker, nil),
		conv:       conv,
	}
}

func (f *messageFixture) append(t *testing.T, senderID uint, clientID, content string) *models.Message {
	t.Helper()
	f.msgRepo.AdvanceClock(time.Second)
	msg, _, err := f.svc.Append(senderID, AppendMessageInput{
		ConversationID: f.conv.ID,
		ClientID:       clientID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("append %q: %v", clientID, err)
	}
	return msg
}

func TestAppendValidation(t *testing.T) {
	f := newMessageFixture(t, nil)

	tests := []struct {
		name     string
		senderID uint
		input    AppendMessageInput
		wantCode apperrors.Code
	}{
		{
			name:     "Missing client id",
			senderID: 1,
			input:    AppendMessageInput{ConversationID: f.conv.ID, Content: "hi"},
			wantCode: apperrors.CodeInvalidArgument,
		},
		{
			name:     "Empty text content",
			senderID: 1,
			input:    AppendMessageInput{ConversationID: f.conv.ID, ClientID: "c-1", Content: "   "},
			wantCode: apperrors.CodeInvalidArgument,
		},
		{
			name:     "Unknown message type",
			senderID: 1,
			input:    AppendMessageInput{ConversationID: f.conv.ID, ClientID: "c-2", Content: "hi", MessageType: "sticker"},
			wantCode: apperrors.CodeInvalidArgument,
		},
		{
			name:     "Image without file url",
			senderID: 1,
			input:    AppendMessageInput{ConversationID: f.conv.ID, ClientID: "c-3", MessageType: models.ImageMessage},
			wantCode: apperrors.CodeInvalidArgument,
		},
		{
			name:     "Unknown conversation",
			senderID: 1,
			input:    AppendMessageInput{ConversationID: 999, ClientID: "c-4", Content: "hi"},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "Sender outside conversation",
			senderID: 42,
			input:    AppendMessageInput{ConversationID: f.conv.ID, ClientID: "c-5", Content: "hi"},
			wantCode: apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Append(tt.senderID, tt.input)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := apperrors.CodeOf(err); got != tt.wantCode {
				t.Errorf("error code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestAppendTruncatesOversizedContent(t *testing.T) {
	f := newMessageFixture(t, nil)

	msg := f.append(t, 1, "big-1", strings.Repeat("x", 10000))
	if len(msg.Content) != 4000 {
		t.Errorf("content length = %d, want 4000", len(msg.Content))
	}
}

func TestAppendClientIDReplay(t *testing.T) {
	f := newMessageFixture(t, nil)

	first, replay, err := f.svc.Append(1, AppendMessageInput{
		ConversationID: f.conv.ID,
		ClientID:       "retry-1",
		Content:        "original",
	})
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if replay {
		t.Error("first append flagged as replay")
	}

	// Same correlation id, different content; the stored row wins.
	second, replay, err := f.svc.Append(1, AppendMessageInput{
		ConversationID: f.conv.ID,
		ClientID:       "retry-1",
		Content:        "mutated retry",
	})
	if err != nil {
		t.Fatalf("replay append: %v", err)
	}
	if !replay {
		t.Error("replay not flagged")
	}
	if second.ID != first.ID || second.Content != "original" {
		t.Errorf("replay returned id=%d content=%q, want id=%d content=%q", second.ID, second.Content, first.ID, first.Content)
	}

	// The peer may reuse the same client id; ids are scoped per sender.
	other, replay, err := f.svc.Append(2, AppendMessageInput{
		ConversationID: f.conv.ID,
		ClientID:       "retry-1",
		Content:        "peer message",
	})
	if err != nil {
		t.Fatalf("peer append: %v", err)
	}
	if replay || other.ID == first.ID {
		t.Errorf("peer append replay=%v id=%d, want new row", replay, other.ID)
	}
}

func TestAppendFansOutToConversationAndRecipient(t *testing.T) {
	broker := fanout.NewBroker(nil)
	defer broker.Close()
	f := newMessageFixture(t, broker)

	recipient := &recordingSink{}
	sub := broker.Subscribe(2, recipient)
	defer sub.Close()
	sub.Join(f.conv.ID)

	msg := f.append(t, 1, "fan-1", "hello")

	created := recipient.byKind(fanout.KindMessageCreated)
	if len(created) != 2 {
		t.Fatalf("recipient saw %d message.created events (conversation + user channel), want 2", len(created))
	}
	for _, ev := range created {
		if ev.ConversationID != f.conv.ID || ev.UserID != 1 {
			t.Errorf("event conv=%d user=%d, want conv=%d user=1", ev.ConversationID, ev.UserID, f.conv.ID)
		}
	}

	// Online recipient means transport receipt: delivered immediately.
	st, err := f.statusRepo.Find(msg.ID, 2)
	if err != nil {
		t.Fatalf("status row missing: %v", err)
	}
	if st.State() != models.StateDelivered {
		t.Errorf("state = %s, want %s", st.State(), models.StateDelivered)
	}
	if got := len(recipient.byKind(fanout.KindStatusChanged)); got == 0 {
		t.Error("no status.changed event after auto-delivery")
	}
}

func TestAppendOfflineRecipientStaysSent(t *testing.T) {
	broker := fanout.NewBroker(nil)
	defer broker.Close()
	f := newMessageFixture(t, broker)

	msg := f.append(t, 1, "off-1", "are you there")

	st, err := f.statusRepo.Find(msg.ID, 2)
	if err != nil {
		t.Fatalf("status row missing: %v", err)
	}
	if st.State() != models.StateSent {
		t.Errorf("state = %s, want %s", st.State(), models.StateSent)
	}
}

func TestAppendSurvivesFailedTransportReceipt(t *testing.T) {
	broker := fanout.NewBroker(nil)
	defer broker.Close()
	f := newMessageFixture(t, broker)

	recipient := &recordingSink{}
	sub := broker.Subscribe(2, recipient)
	defer sub.Close()

	f.statusRepo.deliveredErr = errors.New("status write lost")

	// The append already committed; a broken receipt must not fail it.
	msg := f.append(t, 1, "rcpt-1", "hello")

	st, err := f.statusRepo.Find(msg.ID, 2)
	if err != nil {
		t.Fatalf("status row missing: %v", err)
	}
	if st.State() != models.StateSent {
		t.Errorf("state = %s, want %s", st.State(), models.StateSent)
	}

	// The recipient's explicit ack repairs the row.
	f.statusRepo.deliveredErr = nil
	if err := f.svc.MarkDelivered(msg.ID, 2); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	st, _ = f.statusRepo.Find(msg.ID, 2)
	if st.State() != models.StateDelivered {
		t.Errorf("state after ack = %s, want %s", st.State(), models.StateDelivered)
	}
}

func TestMarkDeliveredMonotonic(t *testing.T) {
	f := newMessageFixture(t, nil)
	msg := f.append(t, 1, "del-1", "first")

	if err := f.svc.MarkDelivered(msg.ID, 2); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	st, _ := f.statusRepo.Find(msg.ID, 2)
	firstAt := *st.DeliveredAt

	// Repeats are accepted and change nothing.
	if err := f.svc.MarkDelivered(msg.ID, 2); err != nil {
		t.Fatalf("repeat MarkDelivered: %v", err)
	}
	st, _ = f.statusRepo.Find(msg.ID, 2)
	if !st.DeliveredAt.Equal(firstAt) {
		t.Error("delivered_at moved on repeat")
	}

	// Delivered after read stays read.
	if _, err := f.svc.MarkReadUpTo(f.conv.ID, 2, msg.ID); err != nil {
		t.Fatalf("MarkReadUpTo: %v", err)
	}
	if err := f.svc.MarkDelivered(msg.ID, 2); err != nil {
		t.Fatalf("MarkDelivered after read: %v", err)
	}
	st, _ = f.statusRepo.Find(msg.ID, 2)
	if st.State() != models.StateRead {
		t.Errorf("state = %s, want %s", st.State(), models.StateRead)
	}
}

func TestMarkDeliveredErrors(t *testing.T) {
	f := newMessageFixture(t, nil)
	msg := f.append(t, 1, "del-2", "hello")

	if err := f.svc.MarkDelivered(999, 2); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("unknown message: code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotFound)
	}
	// The sender has no status row on their own message.
	if err := f.svc.MarkDelivered(msg.ID, 1); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("sender ack: code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotFound)
	}
}

func TestMarkReadUpToCursor(t *testing.T) {
	broker := fanout.NewBroker(nil)
	defer broker.Close()
	f := newMessageFixture(t, broker)

	sender := &recordingSink{}
	sub := broker.Subscribe(1, sender)
	defer sub.Close()

	m1 := f.append(t, 1, "r-1", "one")
	m2 := f.append(t, 1, "r-2", "two")
	m3 := f.append(t, 1, "r-3", "three")

	// Reading up to the middle message covers m1 and m2 but not m3.
	updated, err := f.svc.MarkReadUpTo(f.conv.ID, 2, m2.ID)
	if err != nil {
		t.Fatalf("MarkReadUpTo: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}

	for _, tc := range []struct {
		id   uint
		want models.DeliveryState
	}{
		{m1.ID, models.StateRead},
		{m2.ID, models.StateRead},
		{m3.ID, models.StateSent},
	} {
		st, _ := f.statusRepo.Find(tc.id, 2)
		if st.State() != tc.want {
			t.Errorf("message %d state = %s, want %s", tc.id, st.State(), tc.want)
		}
	}

	// Read implies delivered even without an explicit ack.
	st, _ := f.statusRepo.Find(m1.ID, 2)
	if st.DeliveredAt == nil {
		t.Error("read message missing delivered_at")
	}

	// One status event per newly-read message reaches the sender.
	if got := len(sender.byKind(fanout.KindStatusChanged)); got != 2 {
		t.Errorf("sender saw %d status events, want 2", got)
	}

	// The participant cursor advanced.
	p, err := f.convRepo.GetParticipant(f.conv.ID, 2)
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if p.LastReadMessageID != m2.ID {
		t.Errorf("last_read_message_id = %d, want %d", p.LastReadMessageID, m2.ID)
	}

	// Replaying the same cursor is a no-op.
	updated, err = f.svc.MarkReadUpTo(f.conv.ID, 2, m2.ID)
	if err != nil {
		t.Fatalf("replay MarkReadUpTo: %v", err)
	}
	if updated != 0 {
		t.Errorf("replay updated = %d, want 0", updated)
	}

	// A stale cursor arriving after a newer one changes nothing.
	if _, err := f.svc.MarkReadUpTo(f.conv.ID, 2, m3.ID); err != nil {
		t.Fatalf("advance to m3: %v", err)
	}
	if updated, err = f.svc.MarkReadUpTo(f.conv.ID, 2, m1.ID); err != nil || updated != 0 {
		t.Errorf("stale cursor updated = %d err = %v, want 0 nil", updated, err)
	}
	p, _ = f.convRepo.GetParticipant(f.conv.ID, 2)
	if p.LastReadMessageID != m3.ID {
		t.Errorf("cursor regressed to %d, want %d", p.LastReadMessageID, m3.ID)
	}
}

func TestMarkReadUpToRejectsForeignCursor(t *testing.T) {
	f := newMessageFixture(t, nil)
	other, _, err := f.convRepo.GetOrCreate(1, models.RoleStudent, 3, models.RoleTeacher)
	if err != nil {
		t.Fatalf("seed second conversation: %v", err)
	}

	f.msgRepo.AdvanceClock(time.Second)
	foreign := &models.Message{ClientID: "x-1", ConversationID: other.ID, SenderID: 1, Content: "elsewhere", MessageType: models.TextMessage}
	if err := f.msgRepo.Append(foreign, []uint{3}); err != nil {
		t.Fatalf("seed foreign message: %v", err)
	}

	_, err = f.svc.MarkReadUpTo(f.conv.ID, 2, foreign.ID)
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("foreign cursor code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotFound)
	}
}

func TestListOrderingAndCursor(t *testing.T) {
	f := newMessageFixture(t, nil)

	var ids []uint
	for _, c := range []string{"p-1", "p-2", "p-3", "p-4", "p-5"} {
		ids = append(ids, f.append(t, 1, c, c).ID)
	}

	page, err := f.svc.List(f.conv.ID, 2, 0, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("first page length = %d, want 3", len(page))
	}
	for i, msg := range page {
		if msg.ID != ids[i] {
			t.Errorf("page[%d].ID = %d, want %d", i, msg.ID, ids[i])
		}
	}

	rest, err := f.svc.List(f.conv.ID, 2, page[2].ID, 3)
	if err != nil {
		t.Fatalf("List with cursor: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != ids[3] || rest[1].ID != ids[4] {
		t.Errorf("second page = %v, want [%d %d]", rest, ids[3], ids[4])
	}

	if _, err := f.svc.List(f.conv.ID, 99, 0, 10); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Error("outsider can list messages")
	}
	if _, err := f.svc.List(f.conv.ID, 2, 4242, 10); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Error("unknown cursor accepted")
	}
}

func TestUnreadCounts(t *testing.T) {
	f := newMessageFixture(t, nil)
	second, _, err := f.convRepo.GetOrCreate(2, models.RoleTeacher, 5, models.RoleStudent)
	if err != nil {
		t.Fatalf("seed second conversation: %v", err)
	}

	m1 := f.append(t, 1, "u-1", "one")
	f.append(t, 1, "u-2", "two")
	f.append(t, 1, "u-3", "three")

	f.msgRepo.AdvanceClock(time.Second)
	fromOther := &models.Message{ClientID: "u-4", ConversationID: second.ID, SenderID: 5, Content: "hi teacher", MessageType: models.TextMessage}
	if err := f.msgRepo.Append(fromOther, []uint{2}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	count, err := f.svc.UnreadCount(f.conv.ID, 2)
	if err != nil || count != 3 {
		t.Errorf("UnreadCount = %d err = %v, want 3 nil", count, err)
	}

	total, err := f.svc.TotalUnread(2)
	if err != nil || total != 4 {
		t.Errorf("TotalUnread = %d err = %v, want 4 nil", total, err)
	}

	byConv, err := f.svc.UnreadByConversation(2)
	if err != nil {
		t.Fatalf("UnreadByConversation: %v", err)
	}
	if byConv[f.conv.ID] != 3 || byConv[second.ID] != 1 {
		t.Errorf("byConv = %v, want {%d:3 %d:1}", byConv, f.conv.ID, second.ID)
	}

	// Delivery does not clear unread; only reading does.
	if err := f.svc.MarkDelivered(m1.ID, 2); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if count, _ = f.svc.UnreadCount(f.conv.ID, 2); count != 3 {
		t.Errorf("count after delivery = %d, want 3", count)
	}

	if _, err := f.svc.MarkReadUpTo(f.conv.ID, 2, m1.ID); err != nil {
		t.Fatalf("MarkReadUpTo: %v", err)
	}
	if count, _ = f.svc.UnreadCount(f.conv.ID, 2); count != 2 {
		t.Errorf("count after read = %d, want 2", count)
	}

	// The sender never accrues unread from their own messages.
	if total, _ = f.svc.TotalUnread(1); total != 0 {
		t.Errorf("sender total = %d, want 0", total)
	}
}
