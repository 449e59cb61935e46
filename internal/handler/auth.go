package handler

import (
	"encoding/json"
	"net/http"

	"github.com/firstserv/chat-platform/internal/middleware"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/service"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// AuthHandler handles signup and login endpoints.
type AuthHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *service.UserService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		logger: log,
	}
}

// Signup handles POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateHandle(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Signup(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.users.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		writeDomainError(w, err, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, &model.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}
