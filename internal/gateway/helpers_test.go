package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/internal/security"
	"github.com/replypass/replypass/internal/security/securitytest"
	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/internal/usage"
	"github.com/replypass/replypass/pkg/reply"
)

// fakeEngine answers with canned values and records calls.
type fakeEngine struct {
	mu       sync.Mutex
	result   reply.Result
	err      error
	requests []reply.Request
	feedback []reply.FeedbackRecord
	health   []provider.HealthReport
}

func (f *fakeEngine) Generate(_ context.Context, req reply.Request) (reply.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeEngine) RecordFeedback(_ context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.GenerationID != "gen-1" {
		return reply.FeedbackRecord{}, store.ErrNotFound
	}
	rec.ID, rec.Seq = "fb-1", 1
	f.feedback = append(f.feedback, rec)
	return rec, nil
}

func (f *fakeEngine) Generation(_ context.Context, id string) (reply.Generation, error) {
	if id != "gen-1" {
		return reply.Generation{}, store.ErrNotFound
	}
	return reply.Generation{ID: "gen-1", Status: reply.GenerationSucceeded, Round: 1}, nil
}

func (f *fakeEngine) Usage(_ context.Context, userID string) (usage.Decision, error) {
	return usage.Decision{Count: 2, Limit: 5, Plan: reply.PlanFree, Day: "2026-03-01"}, nil
}

func (f *fakeEngine) Health() []provider.HealthReport { return f.health }

type testGateway struct {
	*Gateway
	handler http.Handler
	events  func() []security.AuditEvent
	reg     *prometheus.Registry
}

func newTestGateway(t *testing.T, cfgYAML string, eng Engine) *testGateway {
	t.Helper()
	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, cfgYAML)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	audit, events := securitytest.NewTestAuditLogger()
	reg := prometheus.NewRegistry()
	if err := g.init(eng, reg, audit); err != nil {
		t.Fatalf("init: %v", err)
	}
	return &testGateway{Gateway: g, handler: g.buildRouter(), events: events, reg: reg}
}

func (tg *testGateway) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.1:40000"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	tg.handler.ServeHTTP(rec, req)
	return rec
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}
	}
	return doc.Content[0]
}
