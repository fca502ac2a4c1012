package fanout

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/amjacademy/messaging-backend/internal/metrics"
	"github.com/amjacademy/messaging-backend/internal/repository"
)

const defaultPendingRetention = 7 * 24 * time.Hour

// pendingRetentionFromEnv reads PENDING_RETENTION_HOURS. Queued rows older
// than the window are dropped even if the user never reconnects.
func pendingRetentionFromEnv() time.Duration {
	if v := os.Getenv("PENDING_RETENTION_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			return time.Duration(h) * time.Hour
		}
	}
	return defaultPendingRetention
}

// Sink receives events for one subscriber. The WebSocket client implements
// it; tests use in-memory fakes.
type Sink interface {
	Deliver(ev *Event) error
}

// Broker fans events out to local subscribers and, when a bridge is
// attached, to the other instances. Durable events for users with no live
// subscription land in the pending queue and are flushed on reconnect.
type Broker struct {
	mu     sync.RWMutex
	byUser map[uint]map[*Subscription]struct{}
	byConv map[uint]map[*Subscription]struct{}

	pendingRepo repository.PendingEventRepositoryInterface
	bridge      *Bridge

	retryInterval  time.Duration
	baseRetryDelay time.Duration
	maxRetries     int
	retention      time.Duration
	flushBatchSize int
	stop           chan struct{}
}

// Subscription is one client's registration: a global user channel plus the
// set of conversations the client currently has open.
type Subscription struct {
	broker *Broker
	userID uint
	sink   Sink

	mu     sync.Mutex
	convs  map[uint]struct{}
	closed bool
}

func NewBroker(pendingRepo repository.PendingEventRepositoryInterface) *Broker {
	b := &Broker{
		byUser:         make(map[uint]map[*Subscription]struct{}),
		byConv:         make(map[uint]map[*Subscription]struct{}),
		pendingRepo:    pendingRepo,
		retryInterval:  5 * time.Second,
		baseRetryDelay: 2 * time.Second,
		maxRetries:     5,
		retention:      pendingRetentionFromEnv(),
		flushBatchSize: 50,
		stop:           make(chan struct{}),
	}
	if pendingRepo != nil {
		go b.retryLoop()
	}
	return b
}

// Close stops the background retry worker.
func (b *Broker) Close() {
	close(b.stop)
}

// Subscribe registers a sink on the user's global channel. The caller should
// follow up with FlushPending to drain queued events.
func (b *Broker) Subscribe(userID uint, sink Sink) *Subscription {
	sub := &Subscription{
		broker: b,
		userID: userID,
		sink:   sink,
		convs:  make(map[uint]struct{}),
	}

	b.mu.Lock()
	if b.byUser[userID] == nil {
		b.byUser[userID] = make(map[*Subscription]struct{})
	}
	b.byUser[userID][sub] = struct{}{}
	total := len(b.byUser)
	b.mu.Unlock()

	metrics.SubscribersGauge.Set(float64(total))
	return sub
}

// Join opens a conversation channel for this subscription.
func (s *Subscription) Join(conversationID uint) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.convs[conversationID] = struct{}{}
	s.mu.Unlock()

	b := s.broker
	b.mu.Lock()
	if b.byConv[conversationID] == nil {
		b.byConv[conversationID] = make(map[*Subscription]struct{})
	}
	b.byConv[conversationID][s] = struct{}{}
	b.mu.Unlock()
}

// Leave closes a conversation channel for this subscription.
func (s *Subscription) Leave(conversationID uint) {
	s.mu.Lock()
	delete(s.convs, conversationID)
	s.mu.Unlock()

	b := s.broker
	b.mu.Lock()
	if subs, ok := b.byConv[conversationID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.byConv, conversationID)
		}
	}
	b.mu.Unlock()
}

// Close removes the subscription from every channel.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	convs := make([]uint, 0, len(s.convs))
	for id := range s.convs {
		convs = append(convs, id)
	}
	s.convs = map[uint]struct{}{}
	s.mu.Unlock()

	b := s.broker
	b.mu.Lock()
	for _, id := range convs {
		if subs, ok := b.byConv[id]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(b.byConv, id)
			}
		}
	}
	if subs, ok := b.byUser[s.userID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.byUser, s.userID)
		}
	}
	total := len(b.byUser)
	b.mu.Unlock()

	metrics.SubscribersGauge.Set(float64(total))
}

// UserOnline reports whether the user has at least one live subscription on
// this instance. Used by the transport-receipt delivery rule.
func (b *Broker) UserOnline(userID uint) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byUser[userID]) > 0
}

// PublishToConversation delivers to every subscription joined to the
// conversation, locally and across the bridge.
func (b *Broker) PublishToConversation(conversationID uint, ev *Event) {
	b.deliverConversationLocal(conversationID, ev)
	if b.bridge != nil {
		b.bridge.publishConversation(conversationID, ev)
	}
}

// PublishToUser delivers on the user's global channel. Durable events for an
// offline user are queued instead of dropped.
func (b *Broker) PublishToUser(userID uint, ev *Event) {
	delivered := b.deliverUserLocal(userID, ev)
	if b.bridge != nil {
		b.bridge.publishUser(userID, ev)
	}
	// The publishing instance queues on a local miss even when a bridge is
	// attached: the user may be connected elsewhere and receive a duplicate
	// later, which at-least-once delivery tolerates. Queued rows for users
	// that never return here age out via CleanupOld.
	if !delivered && ev.Kind.Durable() {
		b.enqueue(userID, ev)
	}
}

func (b *Broker) deliverConversationLocal(conversationID uint, ev *Event) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.byConv[conversationID]))
	for sub := range b.byConv[conversationID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.send(sub, ev)
	}
	metrics.FanoutEventsTotal.WithLabelValues(string(ev.Kind), "conversation").Add(float64(len(targets)))
}

func (b *Broker) deliverUserLocal(userID uint, ev *Event) bool {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.byUser[userID]))
	for sub := range b.byUser[userID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.send(sub, ev)
	}
	metrics.FanoutEventsTotal.WithLabelValues(string(ev.Kind), "user").Add(float64(len(targets)))
	return len(targets) > 0
}

func (b *Broker) send(sub *Subscription, ev *Event) {
	if err := sub.sink.Deliver(ev); err != nil {
		log.Printf("fanout: deliver to user %d failed: %v", sub.userID, err)
		sub.Close()
		if ev.Kind.Durable() {
			b.enqueue(sub.userID, ev)
		}
	}
}

func (b *Broker) enqueue(userID uint, ev *Event) {
	if b.pendingRepo == nil {
		return
	}
	payload, err := ev.Marshal()
	if err != nil {
		log.Printf("fanout: marshal pending event for user %d: %v", userID, err)
		return
	}
	if err := b.pendingRepo.Enqueue(userID, string(ev.Kind), string(payload)); err != nil {
		log.Printf("fanout: enqueue pending event for user %d: %v", userID, err)
		return
	}
	metrics.PendingEnqueuedTotal.Inc()
}

// FlushPending drains the user's offline queue into the given subscription
// in batches, oldest first. Events stay queued if the write fails.
func (b *Broker) FlushPending(sub *Subscription) error {
	if b.pendingRepo == nil {
		return nil
	}

	for {
		pending, err := b.pendingRepo.GetPendingForUser(sub.userID, b.flushBatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		flushed := make([]uint, 0, len(pending))
		for _, pe := range pending {
			ev, err := UnmarshalEvent([]byte(pe.Payload))
			if err != nil {
				log.Printf("fanout: bad pending event %d, dropping: %v", pe.ID, err)
				flushed = append(flushed, pe.ID)
				continue
			}
			if err := sub.sink.Deliver(ev); err != nil {
				// Connection went away mid-flush; keep the rest queued.
				if derr := b.pendingRepo.DeleteBatch(flushed); derr != nil {
					log.Printf("fanout: delete flushed events: %v", derr)
				}
				return err
			}
			flushed = append(flushed, pe.ID)
		}

		if err := b.pendingRepo.DeleteBatch(flushed); err != nil {
			log.Printf("fanout: delete flushed events: %v", err)
		}
		metrics.PendingFlushedTotal.Add(float64(len(flushed)))

		if len(pending) < b.flushBatchSize {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// retryLoop periodically redelivers queued events to users who reconnected
// without a flush and expires rows past the retention window.
func (b *Broker) retryLoop() {
	ticker := time.NewTicker(b.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.retryTick()
		}
	}
}

func (b *Broker) retryTick() {
	if err := b.pendingRepo.CleanupOld(b.retention); err != nil {
		log.Printf("fanout: cleanup pending events: %v", err)
	}

	retryable, err := b.pendingRepo.GetRetryable(100)
	if err != nil {
		log.Printf("fanout: fetch retryable events: %v", err)
		return
	}

	for _, pe := range retryable {
		b.mu.RLock()
		var target *Subscription
		for sub := range b.byUser[pe.UserID] {
			target = sub
			break
		}
		b.mu.RUnlock()

		if target == nil {
			b.park(pe.ID, pe.Attempts+1)
			continue
		}

		ev, err := UnmarshalEvent([]byte(pe.Payload))
		if err != nil {
			log.Printf("fanout: bad pending event %d, dropping: %v", pe.ID, err)
			_ = b.pendingRepo.Delete(pe.ID)
			continue
		}
		if err := target.sink.Deliver(ev); err != nil {
			b.park(pe.ID, pe.Attempts+1)
			continue
		}
		_ = b.pendingRepo.Delete(pe.ID)
		metrics.PendingFlushedTotal.Inc()
	}
}

// park schedules the next attempt. The delay doubles per attempt and pins
// at a fixed hour once the attempt budget is spent; rows past the retention
// window are removed by CleanupOld regardless of their schedule.
func (b *Broker) park(id uint, attempts int) {
	delay := time.Hour
	if attempts < b.maxRetries {
		delay = b.baseRetryDelay * time.Duration(1<<uint(attempts))
	}
	next := time.Now().Add(delay)
	if err := b.pendingRepo.MarkAttempted(id, attempts, &next); err != nil {
		log.Printf("fanout: mark attempted %d: %v", id, err)
	}
}
