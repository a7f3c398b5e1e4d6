package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// ContactHandler serves the caller's address book.
type ContactHandler struct {
	contacts *services.ContactService
	logger   *slog.Logger
}

func NewContactHandler(contacts *services.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, logger: logger}
}

// ContactRouter registers contact routes. The router must already require
// authentication.
func ContactRouter(r chi.Router, contacts *services.ContactService, logger *slog.Logger) {
	h := NewContactHandler(contacts, logger)

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/search", h.Search)
	r.Get("/search/", h.Search)
	r.Get("/birthdays", h.Birthdays)
	r.Get("/birthdays/", h.Birthdays)
	r.Route("/{contactID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, page, ok := h.listParams(w, r)
	if !ok {
		return
	}
	contacts, err := h.contacts.List(r.Context(), identity.ID, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.itemParams(w, r)
	if !ok {
		return
	}
	contact, err := h.contacts.Get(r.Context(), identity.ID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "not authenticated")
		return
	}
	var req services.ContactInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.contacts.Create(r.Context(), identity.ID, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.itemParams(w, r)
	if !ok {
		return
	}
	var req services.ContactInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contact, err := h.contacts.Update(r.Context(), identity.ID, id, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, id, ok := h.itemParams(w, r)
	if !ok {
		return
	}
	contact, err := h.contacts.Delete(r.Context(), identity.ID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactHandler) Search(w http.ResponseWriter, r *http.Request) {
	identity, page, ok := h.listParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := types.ContactFilter{
		FirstName: q.Get("first_name"),
		LastName:  q.Get("last_name"),
		Email:     q.Get("email"),
	}

	contacts, err := h.contacts.Search(r.Context(), identity.ID, filter, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) Birthdays(w http.ResponseWriter, r *http.Request) {
	identity, page, ok := h.listParams(w, r)
	if !ok {
		return
	}
	days := services.DefaultBirthdayDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = parsed
	}

	contacts, err := h.contacts.UpcomingBirthdays(r.Context(), identity.ID, days, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) listParams(w http.ResponseWriter, r *http.Request) (types.Identity, services.Page, bool) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "not authenticated")
		return types.Identity{}, services.Page{}, false
	}
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.Identity{}, services.Page{}, false
	}
	return identity, page, true
}

func (h *ContactHandler) itemParams(w http.ResponseWriter, r *http.Request) (types.Identity, int, bool) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "not authenticated")
		return types.Identity{}, 0, false
	}
	id, err := parseID(r, "contactID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return types.Identity{}, 0, false
	}
	return identity, id, true
}
