// Package registry tracks, per conversation, the set of currently-subscribed
// live connections. It owns subscribe/unsubscribe and membership validation;
// broadcast delivery to each subscriber is independent and never blocks.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/metrics"
)

// ErrForbidden indicates an authenticated user who is not a participant of
// the conversation.
var ErrForbidden = errors.New("not a participant")

// Subscriber is one live connection bound to a conversation. Enqueue must be
// non-blocking and report false when the outbound queue is full; Drop asks
// the connection to close and must also never block.
type Subscriber interface {
	Handle() string
	Enqueue(ev *model.ServerEvent) bool
	Drop(reason string)
}

// ParticipantSource resolves the persisted participant set of a conversation.
type ParticipantSource interface {
	ListParticipants(conversationID string) ([]string, error)
}

// Registry is the process-wide conversation -> subscriber-set map. The outer
// map has its own lock; each conversation entry is locked independently so
// unrelated conversations subscribe and broadcast concurrently.
type Registry struct {
	participants ParticipantSource
	logger       *logger.Logger

	mu            sync.RWMutex
	conversations map[string]*entry
}

type entry struct {
	mu   sync.RWMutex
	subs map[Subscriber]struct{}
}

// New creates an empty registry backed by the given participant source.
func New(participants ParticipantSource, log *logger.Logger) *Registry {
	return &Registry{
		participants:  participants,
		logger:        log,
		conversations: make(map[string]*entry),
	}
}

// Subscribe validates membership against the persisted participant list and
// adds the connection to the conversation's live set. Re-subscribing the
// same connection is a no-op. Participant sets are immutable after creation,
// so the check here is authoritative for the connection's lifetime.
func (r *Registry) Subscribe(conversationID string, sub Subscriber) error {
	participants, err := r.participants.ListParticipants(conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("resolving participants: %w", err)
	}

	member := false
	for _, p := range participants {
		if p == sub.Handle() {
			member = true
			break
		}
	}
	if !member {
		return ErrForbidden
	}

	// The insert happens under the registry lock: Unsubscribe prunes an
	// emptied entry under the same lock, so the entry cannot be orphaned
	// between lookup and insert.
	r.mu.Lock()
	e, ok := r.conversations[conversationID]
	if !ok {
		e = &entry{subs: make(map[Subscriber]struct{})}
		r.conversations[conversationID] = e
	}
	e.mu.Lock()
	e.subs[sub] = struct{}{}
	e.mu.Unlock()
	r.mu.Unlock()

	return nil
}

// Unsubscribe removes the connection from the conversation's live set. It is
// idempotent: absent subscribers and unknown conversations are a no-op, so
// duplicate teardown calls are safe. An entry left empty is released.
func (r *Registry) Unsubscribe(conversationID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conversations[conversationID]
	if !ok {
		return
	}

	e.mu.Lock()
	delete(e.subs, sub)
	empty := len(e.subs) == 0
	e.mu.Unlock()

	if empty {
		delete(r.conversations, conversationID)
	}
}

// Broadcast delivers the event to every connection subscribed at the moment
// of the call. Delivery is an enqueue per subscriber; a subscriber whose
// queue is full is dropped and asked to close, without delaying the others
// or the caller.
func (r *Registry) Broadcast(conversationID string, ev *model.ServerEvent) {
	r.mu.RLock()
	e, ok := r.conversations[conversationID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.RLock()
	subs := make([]Subscriber, 0, len(e.subs))
	for sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Enqueue(ev) {
			metrics.BroadcastDropsTotal.Inc()
			r.logger.Warn("subscriber outbound queue full, dropping connection",
				"conversation_id", conversationID, "user", sub.Handle())
			sub.Drop("outbound queue overflow")
		}
	}
}

// Len reports the number of live subscribers for a conversation.
func (r *Registry) Len(conversationID string) int {
	r.mu.RLock()
	e, ok := r.conversations[conversationID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
