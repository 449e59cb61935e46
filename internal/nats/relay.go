package nats

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/metrics"
)

const (
	// SubjectPrefix is the prefix for all relayed conversation events.
	SubjectPrefix = "chat.conv"
)

// LocalBroadcaster delivers a relayed event to this instance's subscribers.
type LocalBroadcaster interface {
	Broadcast(conversationID string, ev *model.ServerEvent)
}

// envelope is the relay wire format. Origin identifies the publishing
// instance so an event is never delivered twice on the instance it came
// from.
type envelope struct {
	Origin         string             `json:"origin"`
	ConversationID string             `json:"conversation_id"`
	Event          *model.ServerEvent `json:"event"`
}

// Relay republishes broadcasts over NATS and feeds remote broadcasts into
// the local registry. Delivery is best effort: the durable copy of every
// message lives in the store, and each instance's own subscribers are served
// by the local registry regardless of relay health.
type Relay struct {
	client     *Client
	local      LocalBroadcaster
	logger     *logger.Logger
	instanceID string
	sub        *nats.Subscription
}

// NewRelay creates a relay around an established NATS connection.
func NewRelay(client *Client, local LocalBroadcaster, log *logger.Logger) *Relay {
	return &Relay{
		client:     client,
		local:      local,
		logger:     log,
		instanceID: uuid.New().String(),
	}
}

// ConversationSubject returns the relay subject for one conversation.
func ConversationSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, conversationID)
}

// Start subscribes to the relay subjects.
func (r *Relay) Start() error {
	sub, err := r.client.Conn().Subscribe(SubjectPrefix+".>", r.handleRemote)
	if err != nil {
		return fmt.Errorf("failed to subscribe to relay subjects: %w", err)
	}
	r.sub = sub
	r.logger.Info("fan-out relay started", "instance_id", r.instanceID)
	return nil
}

// Stop unsubscribes from the relay subjects.
func (r *Relay) Stop() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}
}

// Broadcast implements dispatch.Broadcaster by republishing the event for
// other instances. Failures are logged and dropped; they never fail the
// submission that produced the event.
func (r *Relay) Broadcast(conversationID string, ev *model.ServerEvent) {
	data, err := json.Marshal(envelope{
		Origin:         r.instanceID,
		ConversationID: conversationID,
		Event:          ev,
	})
	if err != nil {
		r.logger.Error("failed to encode relay envelope", "error", err)
		return
	}
	if err := r.client.Conn().Publish(ConversationSubject(conversationID), data); err != nil {
		r.logger.Warn("relay publish failed", "error", err, "conversation_id", conversationID)
		return
	}
	metrics.RelayEventsTotal.WithLabelValues("out").Inc()
}

func (r *Relay) handleRemote(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.Warn("dropping undecodable relay envelope", "error", err)
		return
	}
	if env.Origin == r.instanceID || env.Event == nil {
		return
	}
	metrics.RelayEventsTotal.WithLabelValues("in").Inc()
	r.local.Broadcast(env.ConversationID, env.Event)
}
