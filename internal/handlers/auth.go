package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AuthHandler serves registration, login and the email-token flows.
type AuthHandler struct {
	users  *services.UserService
	logger *slog.Logger
}

func NewAuthHandler(users *services.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService, logger *slog.Logger) {
	h := NewAuthHandler(users, logger)

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Get("/verify-email", h.VerifyEmail)
	r.Post("/password-reset-email", h.RequestPasswordReset)
	r.Post("/password-reset-confirm", h.ConfirmPasswordReset)
}

// Register creates a user account with the default role.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Register(r.Context(), req, types.RoleUser)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login follows the OAuth2 password flow: form fields username and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	form, err := decodeForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(form.Get("username"))
	password := form.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := h.users.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeUnauthorized(w, "incorrect username or password")
			return
		}
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token for a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.users.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if _, err := h.users.VerifyEmail(r.Context(), token); err != nil {
		h.writeTokenError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Email successfully verified"})
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset email sent"})
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.users.ConfirmPasswordReset(r.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		h.writeTokenError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// writeTokenError reports a bad emailed token as 400 rather than 401.
func (h *AuthHandler) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrInvalidToken) {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}
	writeServiceError(w, r, h.logger, err, "user not found")
}
