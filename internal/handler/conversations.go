package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/firstserv/chat-platform/internal/dispatch"
	"github.com/firstserv/chat-platform/internal/middleware"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/service"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	dispatcher    *dispatch.Dispatcher
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(conversations *service.ConversationService, dispatcher *dispatch.Dispatcher, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		dispatcher:    dispatcher,
		logger:        log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creator := middleware.GetUserHandle(ctx)

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateConversationName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversations.Create(ctx, creator, &req)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "conversation already exists")
			return
		}
		writeDomainError(w, err, "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := middleware.GetUserHandle(ctx)

	convs, err := h.conversations.ListFor(ctx, handle)
	if err != nil {
		writeDomainError(w, err, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	writeJSON(w, http.StatusOK, convs)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := middleware.GetUserHandle(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversations.Get(ctx, handle, conversationID)
	if err != nil {
		writeDomainError(w, err, "failed to fetch conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle := middleware.GetUserHandle(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.Delete(ctx, handle, conversationID); err != nil {
		writeDomainError(w, err, "failed to delete conversation")
		return
	}
	h.dispatcher.Forget(conversationID)

	w.WriteHeader(http.StatusNoContent)
}
