// Package dispatch serializes persistence and broadcast per conversation.
// For any one conversation, at most one persist+broadcast is in flight at a
// time, so the order messages land in the store equals the order every
// subscriber observes. Different conversations proceed fully concurrently.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/metrics"
)

// Gateway is the slice of the persistence gateway the dispatcher writes
// through. The dispatcher is the sole writer of a conversation's message
// log; that single serialized path is what makes these calls safe without
// store-level transactions.
type Gateway interface {
	AppendMessage(conversationID string, msg *model.Message) error
	IncrementReaction(conversationID, messageID, symbol string) (*model.Message, error)
}

// Broadcaster fans a finalized event out to the conversation's subscribers.
type Broadcaster interface {
	Broadcast(conversationID string, ev *model.ServerEvent)
}

// MultiBroadcaster fans an event out to several broadcasters in order, e.g.
// the local registry plus a cross-instance relay.
func MultiBroadcaster(bs ...Broadcaster) Broadcaster {
	return multiBroadcaster(bs)
}

type multiBroadcaster []Broadcaster

func (m multiBroadcaster) Broadcast(conversationID string, ev *model.ServerEvent) {
	for _, b := range m {
		b.Broadcast(conversationID, ev)
	}
}

// Dispatcher owns the per-conversation serialized write path.
type Dispatcher struct {
	gateway     Gateway
	broadcaster Broadcaster
	logger      *logger.Logger

	mu     sync.Mutex
	states map[string]*convState
}

// convState holds one conversation's serialization lock and the last
// timestamp handed out, so assigned timestamps never go backwards even when
// the wall clock does.
type convState struct {
	mu     sync.Mutex
	lastTS time.Time
}

// New creates a dispatcher writing through gateway and fanning out via
// broadcaster.
func New(gateway Gateway, broadcaster Broadcaster, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		gateway:     gateway,
		broadcaster: broadcaster,
		logger:      log,
		states:      make(map[string]*convState),
	}
}

func (d *Dispatcher) state(conversationID string) *convState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[conversationID]
	if !ok {
		st = &convState{}
		d.states[conversationID] = st
	}
	return st
}

// Forget releases a conversation's serialization state. Called when the
// conversation is deleted; identifiers are never reused, so a stale entry
// would otherwise live forever.
func (d *Dispatcher) Forget(conversationID string) {
	d.mu.Lock()
	delete(d.states, conversationID)
	d.mu.Unlock()
}

// Submit finalizes a message (server-assigned identifier and timestamp),
// appends it to the conversation's log, and broadcasts it to all current
// subscribers, including the sender. It returns the finalized message for
// REST-style callers. On a store failure nothing is broadcast.
func (d *Dispatcher) Submit(ctx context.Context, conversationID, sender, content, media string) (*model.Message, error) {
	st := d.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if ts.Before(st.lastTS) {
		ts = st.lastTS
	}

	msg := &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Sender:    sender,
		Content:   content,
		Media:     media,
		Timestamp: ts,
		Reactions: map[string]int{},
	}

	if err := d.gateway.AppendMessage(conversationID, msg); err != nil {
		return nil, err
	}
	st.lastTS = ts

	metrics.MessagesTotal.Inc()
	d.broadcaster.Broadcast(conversationID, model.NewMessageEvent(msg))

	return msg, nil
}

// Typing broadcasts an ephemeral typing indicator. It bypasses persistence
// entirely and carries no ordering guarantee relative to messages.
func (d *Dispatcher) Typing(conversationID, user string) {
	d.broadcaster.Broadcast(conversationID, model.NewTypingEvent(user))
}

// AddReaction increments the counter for symbol on a message, persists the
// updated document, and broadcasts it. The increment runs inside the
// conversation's critical section, so concurrent reactions on the same
// message never lose updates.
func (d *Dispatcher) AddReaction(ctx context.Context, conversationID, messageID, symbol string) (*model.Message, error) {
	st := d.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := d.gateway.IncrementReaction(conversationID, messageID, symbol)
	if err != nil {
		return nil, err
	}

	metrics.ReactionsTotal.Inc()
	d.broadcaster.Broadcast(conversationID, model.NewMessageEvent(msg))

	return msg, nil
}
