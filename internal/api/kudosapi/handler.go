// Package kudosapi serves the kudos feed and user directory endpoints.
package kudosapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/kudospace/internal/domain"
	"github.com/tjfontaine/kudospace/internal/kudos"
	"github.com/tjfontaine/kudospace/internal/server"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	service *kudos.Service
	logger  *slog.Logger
}

func NewHandler(service *kudos.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the endpoints. Listing kudos is public; everything else
// needs an authenticated user.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/kudos", h.handleList)

	r.Group(func(r chi.Router) {
		r.Use(server.RequireUser)
		r.Post("/api/kudos", h.handleCreate)
		r.Delete("/api/kudos/{id}", h.handleDelete)
		r.Get("/api/users", h.handleListUsers)
		r.Get("/api/users/me", h.handleMe)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	details := map[string]any{}

	limit := parseInt(q.Get("limit"), "limit", kudos.DefaultLimit, details)
	offset := parseInt(q.Get("offset"), "offset", 0, details)
	if len(details) > 0 {
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInvalidParameters, "Invalid query parameters.").WithDetails(details))
		return
	}

	list, err := h.service.List(r.Context(), kudos.ListParams{Limit: limit, Offset: offset})
	if err != nil {
		h.fail(w, r, "Failed to retrieve kudos.", err)
		return
	}
	domain.WriteJSON(w, http.StatusOK, list)
}

type createBody struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := server.UserFromContext(r.Context())

	var body createBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		server.AddError(r.Context(), err)
		domain.WriteError(w, createDecodeError(err))
		return
	}

	kudo, err := h.service.Create(r.Context(), user.ID, kudos.CreateCommand{
		RecipientID: body.RecipientID,
		Message:     body.Message,
	})
	if err != nil {
		h.fail(w, r, "Failed to create kudo.", err)
		return
	}
	domain.WriteJSON(w, http.StatusCreated, kudo)
}

// createDecodeError maps a mistyped field onto that field's error code.
func createDecodeError(err error) *domain.APIError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch typeErr.Field {
		case "message":
			return domain.NewAPIError(domain.ErrorCodeInvalidMessage, "message must be a string").
				WithDetail("message", "message must be a string")
		case "recipient_id":
			return domain.NewAPIError(domain.ErrorCodeInvalidRecipient, "recipient_id must be a string").
				WithDetail("recipient_id", "recipient_id must be a string")
		}
		return domain.NewAPIError(domain.ErrorCodeInvalidParameters, "Invalid request body.")
	}
	return domain.NewAPIError(domain.ErrorCodeInvalidParameters, "Request body must be valid JSON.")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := server.UserFromContext(r.Context())

	result, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.fail(w, r, "Failed to delete kudo.", err)
		return
	}
	domain.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	user := server.UserFromContext(r.Context())
	q := r.URL.Query()

	excludeMe, ok := parseBool(q.Get("exclude_me"), true)
	if !ok {
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInvalidParameters, "Invalid query parameters.").
			WithDetail("exclude_me", "exclude_me must be a boolean (true/false or 1/0)"))
		return
	}

	users, err := h.service.ListUsers(r.Context(), user.ID, kudos.UsersQuery{
		Search:    q.Get("search"),
		ExcludeMe: excludeMe,
	})
	if err != nil {
		h.fail(w, r, "Failed to retrieve users.", err)
		return
	}
	domain.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := server.UserFromContext(r.Context())

	profile, err := h.service.Me(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, "Failed to retrieve profile.", err)
		return
	}
	domain.WriteJSON(w, http.StatusOK, profile)
}

// fail writes rule violations as-is and logs anything else as an internal
// error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var serr *kudos.ServiceError
	if errors.As(err, &serr) {
		server.AddLogField(r.Context(), "error_code", string(serr.Code))
		domain.WriteError(w, serr.APIError())
		return
	}

	server.AddError(r.Context(), err)
	h.logger.ErrorContext(r.Context(), msg,
		slog.String("request_id", server.GetRequestID(r.Context())),
		slog.String("error", err.Error()),
	)
	domain.WriteError(w, domain.ErrInternal())
}

// parseInt reads an optional integer query parameter, recording a detail
// message on failure.
func parseInt(raw, name string, def int, details map[string]any) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err == nil {
		return v
	}
	if _, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
		details[name] = name + " must be an integer"
	} else {
		details[name] = name + " must be a number"
	}
	return def
}

func parseBool(raw string, def bool) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return def, true
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}
