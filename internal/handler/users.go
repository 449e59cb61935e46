package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/firstserv/chat-platform/internal/middleware"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/service"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// UserHandler handles profile endpoints.
type UserHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: log,
	}
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetUserHandle(r.Context())

	user, err := h.users.Get(r.Context(), handle)
	if err != nil {
		writeDomainError(w, err, "failed to fetch profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateBio handles PUT /api/v1/users/me/bio
func (h *UserHandler) UpdateBio(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetUserHandle(r.Context())

	var req model.BioUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.UpdateBio(r.Context(), handle, req.Bio)
	if err != nil {
		writeDomainError(w, err, "failed to update bio")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Get handles GET /api/v1/users/{handle}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	user, err := h.users.Get(r.Context(), handle)
	if err != nil {
		writeDomainError(w, err, "failed to fetch profile")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}
