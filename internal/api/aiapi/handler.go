// Package aiapi serves AI-drafted kudo messages.
package aiapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/kudospace/internal/domain"
	"github.com/tjfontaine/kudospace/internal/openrouter"
	"github.com/tjfontaine/kudospace/internal/server"
	"github.com/tjfontaine/kudospace/internal/validation"
)

const (
	// serviceName is reported to clients in error details.
	serviceName  = "OpenRouter.ai"
	maxBodyBytes = 16 << 10
)

var schema = validation.New()

// Completer drafts kudo messages. *openrouter.Service satisfies it.
type Completer interface {
	Complete(ctx context.Context, req openrouter.CompletionRequest, opts *openrouter.CompletionOptions) (*openrouter.CompletionResult, error)
}

type Handler struct {
	completer Completer
	logger    *slog.Logger
}

// NewHandler creates the handler. A nil completer means the AI service is
// not configured and every request fails with INTERNAL_ERROR.
func NewHandler(completer Completer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{completer: completer, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.With(server.RequireUser).Post("/api/ai/generate-message", h.handleGenerate)
}

type generateBody struct {
	Prompt string `json:"prompt" validate:"min=10,max=200"`
}

type GeneratedMessage struct {
	Message string `json:"message"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		server.AddError(r.Context(), err)
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "prompt" {
			domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInvalidPrompt, "Invalid prompt.").
				WithDetail("prompt", "Prompt must be a string"))
			return
		}
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInvalidParameters, "Invalid JSON in request body."))
		return
	}

	body.Prompt = strings.TrimSpace(body.Prompt)
	if err := schema.Struct(body); err != nil {
		domain.WriteError(w, promptError(err))
		return
	}

	if h.completer == nil {
		h.logger.ErrorContext(r.Context(), "OpenRouter configuration error.",
			slog.String("error", "OpenRouter service is not configured"))
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInternal, "AI service configuration error."))
		return
	}

	result, err := h.completer.Complete(r.Context(), openrouter.CompletionRequest{
		Recipient: "colleague",
		Highlight: body.Prompt,
		Tone:      openrouter.ToneGrateful,
		Length:    openrouter.LengthMedium,
	}, nil)
	if err != nil {
		h.writeCompletionError(w, r, err)
		return
	}

	domain.WriteJSON(w, http.StatusOK, GeneratedMessage{Message: result.Message})
}

func promptError(err error) *domain.APIError {
	switch validation.FirstTag(err, "prompt") {
	case "min":
		return domain.NewAPIError(domain.ErrorCodePromptTooShort, "Prompt is too short.").
			WithDetail("prompt", "Prompt must be at least 10 characters")
	case "max":
		return domain.NewAPIError(domain.ErrorCodePromptTooLong, "Prompt is too long.").
			WithDetail("prompt", "Prompt must be at most 200 characters")
	}
	details := make(map[string]any)
	for k, v := range validation.Fields(err) {
		details[k] = v
	}
	return domain.NewAPIError(domain.ErrorCodeInvalidPrompt, "Invalid prompt.").WithDetails(details)
}

// writeCompletionError maps each completion error kind to its response.
func (h *Handler) writeCompletionError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	server.AddError(ctx, err)

	var oerr *openrouter.Error
	if !errors.As(err, &oerr) {
		h.logger.ErrorContext(ctx, "Unexpected error while generating message.", slog.String("error", err.Error()))
		domain.WriteError(w, domain.ErrInternal())
		return
	}
	server.AddLogField(ctx, "error_type", string(oerr.Kind))

	unavailable := func(message string) *domain.APIError {
		return domain.NewAPIError(domain.ErrorCodeAIServiceUnavailable, message).
			WithDetail("service", serviceName)
	}

	switch oerr.Kind {
	case openrouter.KindConfiguration:
		h.logger.ErrorContext(ctx, "OpenRouter configuration error.", slog.String("error", oerr.Message))
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInternal, "AI service configuration error."))

	case openrouter.KindValidation:
		h.logger.WarnContext(ctx, "OpenRouter validation error.", slog.String("error", oerr.Message))
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeInvalidPrompt, oerr.Message))

	case openrouter.KindRateLimit:
		apiErr := unavailable("AI service rate limit exceeded. Please try again later.")
		if oerr.RetryAfter != nil {
			apiErr.WithDetail("retry_after", *oerr.RetryAfter)
			w.Header().Set("Retry-After", strconv.Itoa(*oerr.RetryAfter))
		}
		domain.WriteError(w, apiErr)

	case openrouter.KindServiceUnavailable:
		apiErr := unavailable("AI service is temporarily unavailable. Please write your message manually.")
		if oerr.CorrelationID != "" {
			apiErr.WithDetail("correlation_id", oerr.CorrelationID)
		}
		domain.WriteError(w, apiErr)

	case openrouter.KindNetwork:
		apiErr := unavailable("AI service is temporarily unavailable. Please write your message manually.")
		if oerr.RequestID != "" {
			apiErr.WithDetail("request_id", oerr.RequestID)
		}
		domain.WriteError(w, apiErr)

	case openrouter.KindParse:
		h.logger.ErrorContext(ctx, "Failed to parse AI response.",
			slog.String("error", oerr.Message),
			slog.String("raw_payload", oerr.RawPayload),
		)
		domain.WriteError(w, domain.NewAPIError(domain.ErrorCodeAIServiceUnavailable,
			"AI service returned an invalid response. Please write your message manually."))

	default:
		domain.WriteError(w, domain.ErrInternal())
	}
}
