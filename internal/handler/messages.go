package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/firstserv/chat-platform/internal/dispatch"
	"github.com/firstserv/chat-platform/internal/middleware"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/service"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// MessageHandler handles message endpoints. Submissions go through the
// fan-out dispatcher, the same serialized path live connections use, so
// REST and WebSocket senders observe one ordering.
type MessageHandler struct {
	conversations *service.ConversationService
	dispatcher    *dispatch.Dispatcher
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(conversations *service.ConversationService, dispatcher *dispatch.Dispatcher, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		dispatcher:    dispatcher,
		logger:        log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := middleware.GetUserHandle(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.conversations.Messages(ctx, handle, conversationID)
	if err != nil {
		writeDomainError(w, err, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := middleware.GetUserHandle(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.Authorize(ctx, handle, conversationID); err != nil {
		writeDomainError(w, err, "failed to send message")
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.dispatcher.Submit(ctx, conversationID, handle, req.Content, req.Media)
	if err != nil {
		h.logger.Error("failed to submit message", "error", err, "conversation_id", conversationID)
		writeDomainError(w, err, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// AddReaction handles POST /api/v1/conversations/{id}/messages/{messageID}/reactions
func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := middleware.GetUserHandle(ctx)
	conversationID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.Authorize(ctx, handle, conversationID); err != nil {
		writeDomainError(w, err, "failed to add reaction")
		return
	}

	var req model.AddReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateReaction(req.Reaction); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.dispatcher.AddReaction(ctx, conversationID, messageID, req.Reaction)
	if err != nil {
		writeDomainError(w, err, "failed to add reaction")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
