package fanout

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/amjacademy/messaging-backend/internal/metrics"
)

// NATS subjects. One logical channel per conversation and per user; the
// wildcard subscriptions below mirror every remote publish into the local
// broker.
const (
	SubjectConversation = "chat.conv" // + .<conversation_id>
	SubjectUser         = "chat.user" // + .<user_id>
)

// Bridge replicates fanout events across instances over NATS. Without it the
// broker runs single-instance and is complete on its own.
type Bridge struct {
	conn       *nats.Conn
	instanceID string
	subs       []*nats.Subscription
}

type BridgeConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		URL:           nats.DefaultURL,
		Name:          "amj-messaging",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// envelope wraps an event with the publishing instance so subscribers can
// skip their own traffic.
type envelope struct {
	Origin string `json:"origin"`
	Scope  string `json:"scope"` // "conv" or "user"
	ID     uint   `json:"id"`
	Event  *Event `json:"event"`
}

func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Bridge{
		conn:       nc,
		instanceID: uuid.NewString(),
	}, nil
}

// AttachBridge wires the bridge into the broker: local publishes are
// mirrored out, remote publishes are delivered locally.
func (b *Broker) AttachBridge(br *Bridge) error {
	handler := func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("[nats] bad envelope on %s: %v", msg.Subject, err)
			return
		}
		if env.Origin == br.instanceID || env.Event == nil {
			return
		}
		metrics.FanoutEventsTotal.WithLabelValues(string(env.Event.Kind), "nats").Inc()
		switch env.Scope {
		case "conv":
			b.deliverConversationLocal(env.ID, env.Event)
		case "user":
			// Offline queueing is owned by the publishing instance; remote
			// delivery here is best-effort only.
			b.deliverUserLocal(env.ID, env.Event)
		}
	}

	convSub, err := br.conn.Subscribe(SubjectConversation+".*", handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectConversation, err)
	}
	userSub, err := br.conn.Subscribe(SubjectUser+".*", handler)
	if err != nil {
		_ = convSub.Unsubscribe()
		return fmt.Errorf("nats subscribe %s: %w", SubjectUser, err)
	}

	br.subs = append(br.subs, convSub, userSub)
	b.bridge = br
	return nil
}

func (br *Bridge) publishConversation(conversationID uint, ev *Event) {
	br.publish(fmt.Sprintf("%s.%d", SubjectConversation, conversationID), "conv", conversationID, ev)
}

func (br *Bridge) publishUser(userID uint, ev *Event) {
	br.publish(fmt.Sprintf("%s.%d", SubjectUser, userID), "user", userID, ev)
}

func (br *Bridge) publish(subject, scope string, id uint, ev *Event) {
	data, err := json.Marshal(envelope{
		Origin: br.instanceID,
		Scope:  scope,
		ID:     id,
		Event:  ev,
	})
	if err != nil {
		log.Printf("[nats] marshal envelope: %v", err)
		return
	}
	if err := br.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// Close drains subscriptions and the connection.
func (br *Bridge) Close() {
	for _, sub := range br.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain: %v", err)
		}
	}
	if err := br.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
}
