package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

type contextKey string

const contextIdentityKey contextKey = "identity"

func withIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

func identityFromContext(ctx context.Context) (types.Identity, error) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	if !ok || identity.ID < 1 {
		return types.Identity{}, errors.New("missing identity")
	}
	return identity, nil
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges an action without returning a resource.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, notFound string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		writeUnauthorized(w, "could not validate credentials")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, conflictMessage(err))
	case errors.Is(err, ratelimit.ErrLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, services.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// conflictMessage keeps the detail added by the service layer and drops
// the driver error joined behind it.
func conflictMessage(err error) string {
	msg := err.Error()
	if first, _, ok := strings.Cut(msg, "\n"); ok {
		msg = first
	}
	if msg == store.ErrConflict.Error() {
		return "resource already exists"
	}
	return strings.TrimPrefix(msg, store.ErrConflict.Error()+": ")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// decodeForm reads an urlencoded or multipart form, falling back to JSON
// for other content types.
func decodeForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseMultipartForm(maxJSONBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, errors.New("invalid form body")
		}
		return r.PostForm, nil
	default:
		var body map[string]string
		if err := decodeJSON(w, r, &body); err != nil {
			return nil, err
		}
		values := url.Values{}
		for key, value := range body {
			values.Set(key, value)
		}
		return values, nil
	}
}

func parsePage(r *http.Request) (services.Page, error) {
	skip, err := parseOptionalInt(r, "skip")
	if err != nil {
		return services.Page{}, err
	}
	limit, err := parseOptionalInt(r, "limit")
	if err != nil {
		return services.Page{}, err
	}
	if skip < 0 {
		return services.Page{}, errors.New("invalid skip")
	}
	if limit < 0 {
		return services.Page{}, errors.New("invalid limit")
	}
	return services.Page{Skip: skip, Limit: limit}, nil
}

func parseOptionalInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return value, nil
}

func parseID(r *http.Request, param string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", param)
	}
	return id, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
