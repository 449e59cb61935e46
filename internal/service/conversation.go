package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/metrics"
)

// ErrForbidden indicates the caller is authenticated but not a participant
// of the conversation.
var ErrForbidden = errors.New("access denied")

// ErrInvalidRequest indicates a request that fails domain validation.
var ErrInvalidRequest = errors.New("invalid request")

// ConversationService handles conversation lifecycle operations. Message
// submission is not here: it goes through the dispatcher so REST and live
// connections share one serialized write path.
type ConversationService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st *store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		logger: log,
	}
}

// Create creates a conversation. The creator is always a participant, every
// participant must exist, and an unnamed two-party conversation for a given
// pair may exist at most once.
func (s *ConversationService) Create(ctx context.Context, creator string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	participants := append([]string(nil), req.Participants...)
	included := false
	for _, p := range participants {
		if p == creator {
			included = true
			break
		}
	}
	if !included {
		participants = append(participants, creator)
	}
	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: a conversation needs at least two participants", ErrInvalidRequest)
	}

	for _, handle := range participants {
		if _, err := s.store.GetUser(handle); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("participant %q: %w", handle, store.ErrNotFound)
			}
			return nil, err
		}
	}

	conv := &model.Conversation{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Name:         req.Name,
		Participants: participants,
		Messages:     []model.Message{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateConversation(conv); err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created", "conversation_id", conv.ID, "participants", len(participants))
	return conv, nil
}

// ListFor returns the conversations the handle participates in, without
// message logs.
func (s *ConversationService) ListFor(ctx context.Context, handle string) ([]model.Conversation, error) {
	return s.store.ListConversationsFor(handle)
}

// Get fetches a conversation with its messages; only participants may read.
func (s *ConversationService) Get(ctx context.Context, handle, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.FindConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(handle) {
		return nil, ErrForbidden
	}
	return conv, nil
}

// Authorize checks that handle is a participant of the conversation.
// Returns store.ErrNotFound for unknown conversations and ErrForbidden for
// non-participants.
func (s *ConversationService) Authorize(ctx context.Context, handle, conversationID string) error {
	participants, err := s.store.ListParticipants(conversationID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p == handle {
			return nil
		}
	}
	return ErrForbidden
}

// Messages returns a conversation's message log; only participants may read.
func (s *ConversationService) Messages(ctx context.Context, handle, conversationID string) ([]model.Message, error) {
	if err := s.Authorize(ctx, handle, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(conversationID)
}

// Delete removes a conversation and all its messages; only participants may
// delete.
func (s *ConversationService) Delete(ctx context.Context, handle, conversationID string) error {
	if err := s.Authorize(ctx, handle, conversationID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(conversationID); err != nil {
		return err
	}
	s.logger.Info("conversation deleted", "conversation_id", conversationID, "by", handle)
	return nil
}
