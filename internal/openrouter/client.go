package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/kudospace/internal/validation"
)

const (
	tracerName = "github.com/tjfontaine/kudospace/internal/openrouter"
	userAgent  = "kudospace/1.0"

	// maxErrorBody bounds how much of a non-2xx body is read into messages.
	maxErrorBody = 4 << 10
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// TokenCounter estimates the prompt size of a chat.
type TokenCounter interface {
	CountChat(model string, contents ...string) (int, bool)
}

// Option replaces a collaborator of the Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(doer Doer) Option {
	return func(s *Service) {
		if doer != nil {
			s.http = doer
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout overrides the configured timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithTokenCounter enables the prompt size estimate in debug logs.
func WithTokenCounter(counter TokenCounter) Option {
	return func(s *Service) {
		s.tokens = counter
	}
}

// Service drafts kudo messages through OpenRouter. It holds no mutable
// state and is safe for concurrent use.
type Service struct {
	cfg     Config
	http    Doer
	logger  *slog.Logger
	timeout time.Duration
	tokens  TokenCounter
	tracer  trace.Tracer
}

// New validates cfg and creates a Service. An invalid configuration is
// reported as a KindConfiguration *Error.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		http:    http.DefaultClient,
		logger:  slog.Default(),
		timeout: cfg.timeout(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("OpenRouter service initialized",
		slog.String("model", s.cfg.DefaultModel),
		slog.String("api_url", s.cfg.APIURL),
		slog.Int64("timeout_ms", s.timeout.Milliseconds()),
	)

	return s, nil
}

// With returns a copy of s with the given options applied. s is not modified.
func (s *Service) With(opts ...Option) *Service {
	derived := *s
	for _, opt := range opts {
		opt(&derived)
	}
	return &derived
}

// Timeout returns the resolved upstream timeout.
func (s *Service) Timeout() time.Duration {
	return s.timeout
}

// Model returns the configured default model.
func (s *Service) Model() string {
	return s.cfg.DefaultModel
}

// Complete drafts a kudo message. Every failure is an *Error.
func (s *Service) Complete(ctx context.Context, req CompletionRequest, opts *CompletionOptions) (*CompletionResult, error) {
	ctx, span := s.tracer.Start(ctx, "openrouter.Complete")
	defer span.End()

	req = req.withDefaults()
	span.SetAttributes(
		attribute.String("kudo.tone", string(req.Tone)),
		attribute.String("kudo.length", string(req.Length)),
	)

	result, err := s.complete(ctx, req, opts)
	if err != nil {
		typed := s.handleError(ctx, err, req)
		span.RecordError(typed)
		span.SetStatus(codes.Error, string(typed.Kind))
		return nil, typed
	}

	return result, nil
}

func (s *Service) complete(ctx context.Context, req CompletionRequest, opts *CompletionOptions) (*CompletionResult, error) {
	if err := schema.Struct(req); err != nil {
		return nil, errValidation("Invalid input: %s", validation.Describe(err))
	}
	if opts != nil {
		if err := schema.Struct(opts); err != nil {
			return nil, errValidation("Invalid completion options: %s", validation.Describe(err))
		}
	}

	s.logger.DebugContext(ctx, "Starting kudo message completion",
		slog.Int("recipient_length", runeLen(req.Recipient)),
		slog.Int("highlight_length", runeLen(req.Highlight)),
		slog.String("tone", string(req.Tone)),
		slog.String("length", string(req.Length)),
	)

	messages, err := buildMessages(req)
	if err != nil {
		return nil, err
	}

	payload := composePayload(s.cfg.DefaultModel, messages, opts)
	s.logPromptSize(ctx, payload)

	resp, body, err := s.execute(ctx, payload)
	if err != nil {
		return nil, err
	}

	result, err := parseResult(resp, body)
	if err != nil {
		return nil, err
	}

	if resp.Usage != nil {
		s.logger.DebugContext(ctx, "Token usage",
			slog.Int("prompt_tokens", resp.Usage.PromptTokens),
			slog.Int("completion_tokens", resp.Usage.CompletionTokens),
			slog.Int("total_tokens", resp.Usage.TotalTokens),
		)
	}

	s.logger.InfoContext(ctx, "Kudo message completion successful",
		slog.Int("message_length", runeLen(result.Message)),
		slog.Int("hashtag_count", len(result.SuggestedHashtags)),
	)

	return result, nil
}

// execute performs the single upstream call and classifies its outcome.
func (s *Service) execute(ctx context.Context, payload *ChatCompletionRequest) (*ChatCompletionResponse, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(httpReq)

	resp, err := s.do(ctx, httpReq)
	if err != nil {
		return nil, nil, s.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, classifyStatus(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, s.transportError(ctx, err)
	}

	parsed, err := decodeResponse(respBody)
	if err != nil {
		return nil, nil, err
	}

	return parsed, respBody, nil
}

// do races the request against ctx so a Doer that ignores cancellation
// cannot hold the call past its deadline.
func (s *Service) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	type result struct {
		resp *http.Response
		err  error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := s.http.Do(req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.resp != nil {
				r.resp.Body.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (s *Service) transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errNetwork(fmt.Sprintf("Request timeout after %dms", s.timeout.Milliseconds()), "", err)
	}
	return errNetwork(fmt.Sprintf("Request failed: %v", err), "", err)
}

func (s *Service) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("HTTP-Referer", s.cfg.SiteURL)
	req.Header.Set("X-Title", s.cfg.AppTitle)
	req.Header.Set("User-Agent", userAgent)
}

// classifyStatus maps a non-2xx response to its error kind.
func classifyStatus(resp *http.Response) *Error {
	text := "Unable to read error response"
	if b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		text = strings.TrimSpace(string(b))
	}
	requestID := resp.Header.Get("X-Request-Id")

	switch status := resp.StatusCode; {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errConfiguration("Authentication failed: %d - %s. Check OPENROUTER_API_KEY.", status, text)
	case status == http.StatusTooManyRequests:
		return errRateLimit("Rate limit exceeded: "+text, parseRetryAfter(resp.Header.Get("Retry-After")))
	case status == http.StatusUnprocessableEntity:
		return errValidation("Schema validation failed: %s", text)
	case status >= http.StatusInternalServerError:
		return errServiceUnavailable(fmt.Sprintf("OpenRouter service error: %d - %s", status, text), status, requestID)
	default:
		return errNetwork(fmt.Sprintf("HTTP %d: %s", status, text), requestID, nil)
	}
}

// parseRetryAfter reads a delay-seconds Retry-After value.
func parseRetryAfter(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// handleError logs err with request context and converts anything that is
// not already an *Error into a network error.
func (s *Service) handleError(ctx context.Context, err error, req CompletionRequest) *Error {
	attrs := []slog.Attr{
		slog.Int("recipient_length", runeLen(req.Recipient)),
		slog.Int("highlight_length", runeLen(req.Highlight)),
		slog.String("tone", string(req.Tone)),
	}

	var typed *Error
	if errors.As(err, &typed) {
		attrs = append(attrs, slog.String("error_type", string(typed.Kind)))
		s.logger.LogAttrs(ctx, slog.LevelError, typed.Message, attrs...)
		return typed
	}

	attrs = append(attrs, slog.String("error", err.Error()))
	s.logger.LogAttrs(ctx, slog.LevelError, "Unexpected error in OpenRouter service", attrs...)
	return errNetwork("Unexpected error: "+err.Error(), "", err)
}

func (s *Service) logPromptSize(ctx context.Context, payload *ChatCompletionRequest) {
	if s.tokens == nil || !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	contents := make([]string, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		contents = append(contents, m.Content)
	}
	n, estimated := s.tokens.CountChat(payload.Model, contents...)
	s.logger.DebugContext(ctx, "Prompt size",
		slog.String("model", payload.Model),
		slog.Int("prompt_tokens", n),
		slog.Bool("estimated", estimated),
	)
}
