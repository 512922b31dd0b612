package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/replypass/replypass/internal/engine"
	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/internal/security"
	"github.com/replypass/replypass/pkg/reply"
)

const generateBody = `{"user_id":"user-1","case_id":"case-1","session_id":"session-1","goal":"say yes"}`

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	info := (&Gateway{}).ModuleInfo()
	if info.ID != "gateway.http" {
		t.Errorf("ID = %q", info.ID)
	}
	if _, ok := info.New().(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatal(err)
	}
	c := g.config
	if c.Bind != "127.0.0.1:8080" || c.WriteTimeout != 2*time.Minute || c.MaxBodyBytes != 64<<10 || c.RateLimits.AuthFailuresPerMinute != 10 {
		t.Errorf("defaults = %+v", c)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"loopback without auth", `bind: "127.0.0.1:9000"`, false},
		{"public without auth", `bind: "0.0.0.0:9000"`, true},
		{"public with bearer", "bind: \"0.0.0.0:9000\"\nauth:\n  bearer_token: t", false},
		{"bad address", `bind: "not an address"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{}
			if err := g.Configure(mustYAMLNode(t, tt.yaml)); err != nil {
				t.Fatal(err)
			}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_StatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result reply.Result
		want   int
	}{
		{"ok", reply.Result{Status: reply.StatusOK, GenerationID: "gen-1"}, http.StatusOK},
		{"quota", reply.Result{Status: reply.StatusQuotaExceeded, Quota: &reply.Quota{Count: 5, Limit: 5}}, http.StatusTooManyRequests},
		{"failed", reply.Result{Status: reply.StatusGenerationFailed, Failure: reply.FailureInvalidOutput}, http.StatusBadGateway},
		{"unavailable", reply.Result{Status: reply.StatusUnavailable}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tg := newTestGateway(t, "{}", &fakeEngine{result: tt.result})
			rec := tg.do(http.MethodPost, "/api/generations", generateBody)
			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			var got reply.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.result.Status {
				t.Errorf("status = %q", got.Status)
			}
		})
	}
}

func TestGenerate_DefaultsModeAndAuditsQuota(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{result: reply.Result{Status: reply.StatusQuotaExceeded, Quota: &reply.Quota{Count: 5, Limit: 5}}}
	tg := newTestGateway(t, "{}", eng)
	tg.do(http.MethodPost, "/api/generations", generateBody)

	if len(eng.requests) != 1 || eng.requests[0].Mode != reply.ModeInitial || eng.requests[0].Goal != "say yes" {
		t.Errorf("requests = %+v", eng.requests)
	}
	events := tg.events()
	if len(events) != 1 || events[0].Type != security.EventQuotaExceeded || events[0].UserID != "user-1" {
		t.Errorf("audit events = %+v", events)
	}
}

func TestGenerate_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed json", `{"user_id":`, nil, http.StatusBadRequest},
		{"unknown field", `{"user":"x"}`, nil, http.StatusBadRequest},
		{"invalid request", `{"user_id":"u"}`, errors.Join(engine.ErrInvalidRequest, errors.New("case_id is required")), http.StatusBadRequest},
		{"engine error", generateBody, errors.New("boom"), http.StatusInternalServerError},
		{"too large", `{"goal":"` + strings.Repeat("x", 200) + `"}`, nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tg := newTestGateway(t, "max_body_bytes: 128", &fakeEngine{err: tt.err})
			if rec := tg.do(http.MethodPost, "/api/generations", tt.body); rec.Code != tt.want {
				t.Errorf("code = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestGenerate_PerUserBurstLimit(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, "rate_limits:\n  requests_per_minute: 2", &fakeEngine{result: reply.Result{Status: reply.StatusOK}})
	for range 2 {
		if rec := tg.do(http.MethodPost, "/api/generations", generateBody); rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
	}
	if rec := tg.do(http.MethodPost, "/api/generations", generateBody); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request code = %d, want 429", rec.Code)
	}
}

func TestFeedbackAndGeneration(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	tg := newTestGateway(t, "{}", eng)

	rec := tg.do(http.MethodPost, "/api/generations/gen-1/feedback", `{"suggestion_index":2,"rating":"accepted"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("feedback code = %d: %s", rec.Code, rec.Body)
	}
	if len(eng.feedback) != 1 || eng.feedback[0].GenerationID != "gen-1" || eng.feedback[0].SuggestionIndex != 2 {
		t.Errorf("feedback = %+v", eng.feedback)
	}

	if rec := tg.do(http.MethodPost, "/api/generations/missing/feedback", `{"suggestion_index":0,"rating":"rejected"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown generation code = %d", rec.Code)
	}
	if rec := tg.do(http.MethodGet, "/api/generations/gen-1", ""); rec.Code != http.StatusOK {
		t.Errorf("get code = %d", rec.Code)
	}
	if rec := tg.do(http.MethodGet, "/api/generations/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing code = %d", rec.Code)
	}
}

func TestUsage(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, "{}", &fakeEngine{})
	rec := tg.do(http.MethodGet, "/api/users/user-1/usage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got UsageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := UsageResponse{UserID: "user-1", Plan: "free", Day: "2026-03-01", Count: 2, Limit: 5, Remaining: 3}
	if got != want {
		t.Errorf("usage = %+v, want %+v", got, want)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		states     []string
		wantStatus string
		wantCode   int
	}{
		{"no providers", nil, "ok", http.StatusOK},
		{"all healthy", []string{"healthy", "healthy"}, "ok", http.StatusOK},
		{"fallback serving", []string{"cooldown", "healthy"}, "degraded", http.StatusOK},
		{"all down", []string{"dead", "cooldown"}, "down", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eng := &fakeEngine{}
			for i, s := range tt.states {
				eng.health = append(eng.health, provider.HealthReport{Provider: "p" + string(rune('0'+i)), State: s})
			}
			tg := newTestGateway(t, "auth:\n  bearer_token: secret", eng)
			rec := tg.do(http.MethodGet, "/health", "")
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var got HealthResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &got)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, "{}", &fakeEngine{result: reply.Result{Status: reply.StatusOK}})
	tg.do(http.MethodPost, "/api/generations", generateBody)

	if got := testutil.ToFloat64(tg.metrics.requests.WithLabelValues("POST", "/api/generations", "200")); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
	rec := tg.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "replypass_http_requests_total") {
		t.Errorf("metrics code = %d", rec.Code)
	}
}
