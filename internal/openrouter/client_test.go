package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const validContent = `{"message": "Thanks for untangling the release pipeline this week!", "suggested_hashtags": ["#teamwork", "#shipit"]}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":    "gen-123",
		"model": DefaultModel,
		"choices": []any{
			map[string]any{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
	})
	return string(b)
}

func response(status int, body string, headers map[string]string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// recordingDoer returns a canned response and remembers what it was sent.
type recordingDoer struct {
	mu    sync.Mutex
	calls int32
	last  *http.Request
	body  []byte
	reply func() *http.Response
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&d.calls, 1)
	body, _ := io.ReadAll(req.Body)
	d.mu.Lock()
	d.last = req
	d.body = body
	d.mu.Unlock()
	return d.reply(), nil
}

func (d *recordingDoer) Calls() int {
	return int(atomic.LoadInt32(&d.calls))
}

func okDoer(content string) *recordingDoer {
	return &recordingDoer{reply: func() *http.Response {
		return response(http.StatusOK, completionBody(content), nil)
	}}
}

func newTestService(t *testing.T, doer Doer, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithHTTPClient(doer), WithLogger(discardLogger())}, opts...)
	s, err := New(Config{APIKey: "test-key"}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func validRequest() CompletionRequest {
	return CompletionRequest{
		Recipient: "Ada",
		Highlight: "Fixed the flaky deploy job and wrote a runbook for it",
		Tone:      ToneCelebratory,
		Length:    LengthShort,
	}
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", want)
	}
	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("error = %T (%v), want *Error", err, err)
	}
	if typed.Kind != want {
		t.Fatalf("error kind = %s (%v), want %s", typed.Kind, typed, want)
	}
	return typed
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing api key", cfg: Config{}},
		{name: "blank api key", cfg: Config{APIKey: "   "}},
		{name: "malformed url", cfg: Config{APIKey: "k", APIURL: "not a url"}},
		{name: "negative timeout", cfg: Config{APIKey: "k", TimeoutMS: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, WithLogger(discardLogger()))
			requireKind(t, err, KindConfiguration)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{APIKey: "k", APIURL: "https://example.test/api/v1/"}, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.cfg.APIURL != "https://example.test/api/v1" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", s.cfg.APIURL)
	}
	if s.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", s.Model(), DefaultModel)
	}
	if s.cfg.SiteURL != DefaultSiteURL || s.cfg.AppTitle != DefaultAppTitle {
		t.Errorf("identification defaults = %q/%q", s.cfg.SiteURL, s.cfg.AppTitle)
	}
}

func TestNew_TimeoutResolution(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		override time.Duration
		want     time.Duration
	}{
		{name: "schema default", cfg: Config{APIKey: "k"}, want: 30 * time.Second},
		{name: "configured", cfg: Config{APIKey: "k", TimeoutMS: 1500}, want: 1500 * time.Millisecond},
		{name: "override wins", cfg: Config{APIKey: "k", TimeoutMS: 1500}, override: 200 * time.Millisecond, want: 200 * time.Millisecond},
		{name: "override over default", cfg: Config{APIKey: "k"}, override: time.Second, want: time.Second},
		{name: "zero override ignored", cfg: Config{APIKey: "k", TimeoutMS: 700}, override: 0, want: 700 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, WithLogger(discardLogger()), WithTimeout(tt.override))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if s.Timeout() != tt.want {
				t.Errorf("Timeout() = %v, want %v", s.Timeout(), tt.want)
			}
		})
	}
}

func TestService_WithDoesNotMutate(t *testing.T) {
	first := okDoer(validContent)
	second := okDoer(validContent)

	base := newTestService(t, first)
	derived := base.With(WithHTTPClient(second), WithTimeout(2*time.Second))

	if base.Timeout() != 30*time.Second {
		t.Errorf("base Timeout() = %v, want unchanged 30s", base.Timeout())
	}
	if derived.Timeout() != 2*time.Second {
		t.Errorf("derived Timeout() = %v, want 2s", derived.Timeout())
	}
	if derived.logger != base.logger {
		t.Error("derived service should inherit the logger")
	}

	if _, err := derived.Complete(context.Background(), validRequest(), nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if first.Calls() != 0 || second.Calls() != 1 {
		t.Errorf("calls base=%d derived=%d, want 0 and 1", first.Calls(), second.Calls())
	}
}

func TestComplete_ValidationSkipsNetwork(t *testing.T) {
	tests := []struct {
		name string
		req  CompletionRequest
	}{
		{name: "missing recipient", req: CompletionRequest{Highlight: "Great work on the launch"}},
		{name: "missing highlight", req: CompletionRequest{Recipient: "Ada"}},
		{name: "recipient too long", req: CompletionRequest{Recipient: strings.Repeat("a", 101), Highlight: "x"}},
		{name: "highlight too long", req: CompletionRequest{Recipient: "Ada", Highlight: strings.Repeat("h", 501)}},
		{name: "unknown tone", req: CompletionRequest{Recipient: "Ada", Highlight: "x", Tone: "sarcastic"}},
		{name: "unknown length", req: CompletionRequest{Recipient: "Ada", Highlight: "x", Length: "epic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := okDoer(validContent)
			s := newTestService(t, doer)

			_, err := s.Complete(context.Background(), tt.req, nil)
			requireKind(t, err, KindValidation)
			if doer.Calls() != 0 {
				t.Errorf("HTTP calls = %d, want 0", doer.Calls())
			}
		})
	}
}

func TestComplete_InvalidOptionsSkipNetwork(t *testing.T) {
	temp := 2.5
	zero := 0
	penalty := -3.0

	tests := []struct {
		name string
		opts *CompletionOptions
	}{
		{name: "temperature", opts: &CompletionOptions{Temperature: &temp}},
		{name: "max tokens", opts: &CompletionOptions{MaxCompletionTokens: &zero}},
		{name: "presence penalty", opts: &CompletionOptions{PresencePenalty: &penalty}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := okDoer(validContent)
			s := newTestService(t, doer)

			_, err := s.Complete(context.Background(), validRequest(), tt.opts)
			requireKind(t, err, KindValidation)
			if doer.Calls() != 0 {
				t.Errorf("HTTP calls = %d, want 0", doer.Calls())
			}
		})
	}
}

func TestComplete_Success(t *testing.T) {
	doer := okDoer(validContent)
	s := newTestService(t, doer)

	result, err := s.Complete(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if result.Message != "Thanks for untangling the release pipeline this week!" {
		t.Errorf("Message = %q", result.Message)
	}
	if n := runeLen(result.Message); n < 10 || n > 320 {
		t.Errorf("Message length = %d, want 10-320", n)
	}
	if len(result.SuggestedHashtags) != 2 || result.SuggestedHashtags[0] != "#teamwork" {
		t.Errorf("SuggestedHashtags = %v", result.SuggestedHashtags)
	}

	if doer.Calls() != 1 {
		t.Fatalf("HTTP calls = %d, want exactly 1", doer.Calls())
	}

	req := doer.last
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	if got := req.URL.String(); got != DefaultAPIURL+"/chat/completions" {
		t.Errorf("URL = %s", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if req.Header.Get("HTTP-Referer") != DefaultSiteURL || req.Header.Get("X-Title") != DefaultAppTitle {
		t.Errorf("identification headers = %q / %q", req.Header.Get("HTTP-Referer"), req.Header.Get("X-Title"))
	}

	var sent map[string]json.RawMessage
	if err := json.Unmarshal(doer.body, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	for _, absent := range []string{"temperature", "top_p", "max_completion_tokens", "presence_penalty"} {
		if _, ok := sent[absent]; ok {
			t.Errorf("request body contains %q, want it omitted", absent)
		}
	}

	var payload ChatCompletionRequest
	if err := json.Unmarshal(doer.body, &payload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if payload.Model != DefaultModel {
		t.Errorf("model = %q, want %q", payload.Model, DefaultModel)
	}
	if len(payload.Messages) != 2 || payload.Messages[0].Role != RoleSystem || payload.Messages[1].Role != RoleUser {
		t.Fatalf("messages = %+v", payload.Messages)
	}
	if !strings.Contains(payload.Messages[1].Content, "Keep it brief (50-100 characters)") {
		t.Errorf("user message missing length guidance: %q", payload.Messages[1].Content)
	}
}

func TestComplete_OptionsForwarded(t *testing.T) {
	doer := okDoer(validContent)
	s := newTestService(t, doer)

	model := "openai/gpt-4o-mini"
	temp := 0.0
	topP := 0.9
	maxTokens := 200
	opts := &CompletionOptions{Model: &model, Temperature: &temp, TopP: &topP, MaxCompletionTokens: &maxTokens}

	if _, err := s.Complete(context.Background(), validRequest(), opts); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var sent map[string]any
	if err := json.Unmarshal(doer.body, &sent); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if sent["model"] != model {
		t.Errorf("model = %v, want %v", sent["model"], model)
	}
	if v, ok := sent["temperature"]; !ok || v != 0.0 {
		t.Errorf("temperature = %v (present=%v), want explicit 0", v, ok)
	}
	if sent["top_p"] != 0.9 {
		t.Errorf("top_p = %v", sent["top_p"])
	}
	if sent["max_completion_tokens"] != 200.0 {
		t.Errorf("max_completion_tokens = %v", sent["max_completion_tokens"])
	}
	if _, ok := sent["presence_penalty"]; ok {
		t.Error("presence_penalty should be omitted")
	}
}

func TestComplete_ContentWrappedInProse(t *testing.T) {
	bare := okDoer(validContent)
	wrapped := okDoer("Here you go: " + validContent + " thanks")

	want, err := newTestService(t, bare).Complete(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Complete(bare) error = %v", err)
	}
	got, err := newTestService(t, wrapped).Complete(context.Background(), validRequest(), nil)
	if err != nil {
		t.Fatalf("Complete(wrapped) error = %v", err)
	}

	if got.Message != want.Message || strings.Join(got.SuggestedHashtags, ",") != strings.Join(want.SuggestedHashtags, ",") {
		t.Errorf("wrapped result = %+v, want %+v", got, want)
	}
}

func TestComplete_HashtagFieldNames(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "camelCase",
			content: `{"message": "You made the migration painless!", "suggestedHashtags": ["#db"]}`,
			want:    []string{"#db"},
		},
		{
			name:    "snake_case wins",
			content: `{"message": "You made the migration painless!", "suggested_hashtags": ["#snake"], "suggestedHashtags": ["#camel"]}`,
			want:    []string{"#snake"},
		},
		{
			name:    "absent",
			content: `{"message": "You made the migration painless!"}`,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestService(t, okDoer(tt.content)).Complete(context.Background(), validRequest(), nil)
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if result.SuggestedHashtags == nil {
				t.Fatal("SuggestedHashtags = nil, want non-nil slice")
			}
			if strings.Join(result.SuggestedHashtags, ",") != strings.Join(tt.want, ",") {
				t.Errorf("SuggestedHashtags = %v, want %v", result.SuggestedHashtags, tt.want)
			}
		})
	}
}

func TestComplete_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    Kind
		check   func(t *testing.T, e *Error)
	}{
		{name: "unauthorized", status: 401, want: KindConfiguration},
		{name: "forbidden", status: 403, want: KindConfiguration},
		{
			name: "rate limited", status: 429, headers: map[string]string{"Retry-After": "30"}, want: KindRateLimit,
			check: func(t *testing.T, e *Error) {
				if e.RetryAfter == nil || *e.RetryAfter != 30 {
					t.Errorf("RetryAfter = %v, want 30", e.RetryAfter)
				}
			},
		},
		{
			name: "rate limited without hint", status: 429, want: KindRateLimit,
			check: func(t *testing.T, e *Error) {
				if e.RetryAfter != nil {
					t.Errorf("RetryAfter = %d, want nil", *e.RetryAfter)
				}
			},
		},
		{name: "unprocessable", status: 422, want: KindValidation},
		{
			name: "server error", status: 500, headers: map[string]string{"X-Request-Id": "corr-1"}, want: KindServiceUnavailable,
			check: func(t *testing.T, e *Error) {
				if e.StatusCode != 500 {
					t.Errorf("StatusCode = %d, want 500", e.StatusCode)
				}
				if e.CorrelationID != "corr-1" {
					t.Errorf("CorrelationID = %q, want corr-1", e.CorrelationID)
				}
			},
		},
		{
			name: "bad gateway", status: 502, want: KindServiceUnavailable,
			check: func(t *testing.T, e *Error) {
				if e.StatusCode != 502 {
					t.Errorf("StatusCode = %d, want 502", e.StatusCode)
				}
			},
		},
		{
			name: "not found", status: 404, headers: map[string]string{"X-Request-Id": "req-9"}, want: KindNetwork,
			check: func(t *testing.T, e *Error) {
				if e.RequestID != "req-9" {
					t.Errorf("RequestID = %q, want req-9", e.RequestID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &recordingDoer{reply: func() *http.Response {
				return response(tt.status, `{"error":{"message":"upstream said no"}}`, tt.headers)
			}}
			s := newTestService(t, doer)

			_, err := s.Complete(context.Background(), validRequest(), nil)
			typed := requireKind(t, err, tt.want)
			if tt.check != nil {
				tt.check(t, typed)
			}
			if doer.Calls() != 1 {
				t.Errorf("HTTP calls = %d, want 1 (no retries)", doer.Calls())
			}
		})
	}
}

func TestComplete_Timeout(t *testing.T) {
	slow := DoerFunc(func(req *http.Request) (*http.Response, error) {
		time.Sleep(500 * time.Millisecond)
		return response(http.StatusOK, completionBody(validContent), nil), nil
	})

	s, err := New(Config{APIKey: "k", TimeoutMS: 50}, WithHTTPClient(slow), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	_, err = s.Complete(context.Background(), validRequest(), nil)
	typed := requireKind(t, err, KindNetwork)

	if !strings.Contains(typed.Message, "50ms") {
		t.Errorf("Message = %q, want it to name the 50ms timeout", typed.Message)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Complete() took %v, want it to return at the deadline", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("errors.Is(err, DeadlineExceeded) = false")
	}
}

func TestComplete_TransportFailure(t *testing.T) {
	boom := errors.New("connection refused")
	s := newTestService(t, DoerFunc(func(req *http.Request) (*http.Response, error) {
		return nil, boom
	}))

	_, err := s.Complete(context.Background(), validRequest(), nil)
	requireKind(t, err, KindNetwork)
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is(err, boom) = false, want the cause preserved")
	}
}

func TestComplete_ParseFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing content", body: `{"id":"gen-1","model":"m","choices":[{"message":{"role":"assistant"},"finish_reason":"stop"}]}`},
		{name: "empty choices", body: `{"id":"gen-1","model":"m","choices":[]}`},
		{name: "missing id", body: `{"model":"m","choices":[{"message":{"role":"assistant","content":"{}"},"finish_reason":"stop"}]}`},
		{name: "body not json", body: `<html>gateway</html>`},
		{name: "content not json", body: completionBody("I cannot help with that")},
		{name: "content malformed json", body: completionBody(`{"message": "Great job!", `)},
		{name: "message too short", body: completionBody(`{"message": "Nice"}`)},
		{name: "too many hashtags", body: completionBody(`{"message": "Fantastic effort on the launch!", "suggested_hashtags": ["#a1","#b2","#c3","#d4"]}`)},
		{name: "bad hashtag", body: completionBody(`{"message": "Fantastic effort on the launch!", "suggested_hashtags": ["Teamwork"]}`)},
		{name: "uppercase hashtag", body: completionBody(`{"message": "Fantastic effort on the launch!", "suggested_hashtags": ["#TeamWork"]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, &recordingDoer{reply: func() *http.Response {
				return response(http.StatusOK, tt.body, nil)
			}})

			_, err := s.Complete(context.Background(), validRequest(), nil)
			typed := requireKind(t, err, KindParse)
			if typed.RawPayload == "" {
				t.Error("RawPayload is empty, want a diagnostic snippet")
			}
			if runeLen(typed.RawPayload) > maxSnippetLength {
				t.Errorf("RawPayload length = %d, want <= %d", runeLen(typed.RawPayload), maxSnippetLength)
			}
		})
	}
}

func TestComplete_ParseSnippetTruncated(t *testing.T) {
	huge := `{"model":"m","choices":[],"padding":"` + strings.Repeat("x", 2000) + `"}`
	s := newTestService(t, &recordingDoer{reply: func() *http.Response {
		return response(http.StatusOK, huge, nil)
	}})

	_, err := s.Complete(context.Background(), validRequest(), nil)
	typed := requireKind(t, err, KindParse)
	if len(typed.RawPayload) != maxSnippetLength {
		t.Errorf("RawPayload length = %d, want %d", len(typed.RawPayload), maxSnippetLength)
	}
}

func TestComplete_Concurrent(t *testing.T) {
	doer := okDoer(validContent)
	s := newTestService(t, doer)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Complete(context.Background(), validRequest(), nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Complete() error = %v", err)
	}
	if doer.Calls() != 16 {
		t.Errorf("HTTP calls = %d, want 16", doer.Calls())
	}
}

type fixedCounter struct{ calls int32 }

func (c *fixedCounter) CountChat(model string, contents ...string) (int, bool) {
	atomic.AddInt32(&c.calls, 1)
	return 42, false
}

func TestComplete_TokenCounterOnlyAtDebug(t *testing.T) {
	counter := &fixedCounter{}
	s := newTestService(t, okDoer(validContent), WithTokenCounter(counter))
	if _, err := s.Complete(context.Background(), validRequest(), nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if atomic.LoadInt32(&counter.calls) != 0 {
		t.Error("token counter used with debug logging disabled")
	}

	debug := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if _, err := s.With(WithLogger(debug)).Complete(context.Background(), validRequest(), nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if atomic.LoadInt32(&counter.calls) != 1 {
		t.Errorf("token counter calls = %d, want 1", counter.calls)
	}
}
