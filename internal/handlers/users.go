package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const formFieldAvatar = "avatar"

// UserHandler serves the caller's own profile.
type UserHandler struct {
	users  *services.UserService
	logger *slog.Logger
}

func NewUserHandler(users *services.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// UserRouter registers profile routes. The router must already require
// authentication; limited wraps the endpoints that are rate limited.
func UserRouter(r chi.Router, users *services.UserService, limited func(http.Handler) http.Handler, logger *slog.Logger) {
	h := NewUserHandler(users, logger)

	r.With(limited).Get("/me", h.Me)
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(types.RoleAdmin))
		r.Patch("/avatar", h.UpdateAvatar)
		r.Post("/avatar/upload", h.UploadAvatar)
	})
}

// Me returns the authenticated identity.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

type AvatarRequest struct {
	NewAvatar string `json:"new_avatar"`
}

type AvatarResponse struct {
	Message string `json:"message"`
	Avatar  string `json:"avatar"`
}

// UpdateAvatar takes new_avatar from the query string or a JSON body.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	avatarURL := strings.TrimSpace(r.URL.Query().Get("new_avatar"))
	if avatarURL == "" && r.ContentLength != 0 {
		var req AvatarRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		avatarURL = req.NewAvatar
	}

	user, err := h.users.UpdateAvatar(r.Context(), identity, avatarURL)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, AvatarResponse{Message: "Avatar updated", Avatar: user.Avatar})
}

// UploadAvatar accepts a multipart image in the avatar field.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarUploadSize+(1<<20))
	file, _, err := r.FormFile(formFieldAvatar)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "avatar is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	user, err := h.users.UploadAvatar(r.Context(), identity, file)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, AvatarResponse{Message: "Avatar updated", Avatar: user.Avatar})
}
