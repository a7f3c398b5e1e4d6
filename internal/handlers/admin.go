package handlers

import (
	"log/slog"
	"net/http"

	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/types"
)

// CreateAdmin returns a handler that registers a user with the admin role.
// It must be mounted behind RequireAuth and RequireRole(types.RoleAdmin).
func CreateAdmin(users *services.UserService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.RegisterInput
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		user, err := users.Register(r.Context(), req, types.RoleAdmin)
		if err != nil {
			writeServiceError(w, r, logger, err, "user not found")
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}
