package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/corpus"
	"github.com/zen-systems/switchboard/pkg/embedding"
	"github.com/zen-systems/switchboard/pkg/feedback"
	"github.com/zen-systems/switchboard/pkg/handoff"
	"github.com/zen-systems/switchboard/pkg/metrics"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/store"
)

const testSecret = "test-admin-secret"

type harness struct {
	server *Server
	store  *store.Store
}

func newHarness(t *testing.T, secret string) harness {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, config.StorageConfig{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	routing := config.DefaultRoutingConfig()
	disabled := false
	routing.Classifier.Enabled = &disabled

	logger := zap.NewNop()
	collector := metrics.NewCollector("switchboard", logger)
	emb := embedding.NewHashEmbedder(64)
	examples := corpus.New(st, logger)
	engine := router.NewEngine(routing,
		router.WithVectorRouter(router.NewVectorRouter(emb, examples, routing.Vector.K, logger)),
		router.WithRecorder(st),
		router.WithObserver(collector),
		router.WithLogger(logger))
	protocol := handoff.New(engine, st, routing.Thresholds.Handoff, handoff.WithObserver(collector))
	loop := feedback.NewLoop(st, emb, examples, feedback.WithObserver(collector))

	srv := New(config.ServerConfig{AdminSecret: secret, RequestTimeout: 5 * time.Second}, Deps{
		Engine:   engine,
		Handoff:  protocol,
		Feedback: loop,
		Store:    st,
		Metrics:  collector,
	}, logger)
	return harness{server: srv, store: st}
}

func (h harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndAgents(t *testing.T) {
	h := newHarness(t, testSecret)

	rec := h.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/agents", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	agents := decodeBody[[]agentInfo](t, rec)
	require.Len(t, agents, len(agent.AllRoles()))
	assert.Equal(t, "orchestrator", agents[0].Name)
	assert.False(t, agents[0].Specialist)
}

func TestRouteEndpoint(t *testing.T) {
	h := newHarness(t, testSecret)

	rec := h.do(t, http.MethodPost, "/v1/route", map[string]any{"text": "ask the coder to review my PR"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decodeBody[agent.RoutingDecision](t, rec)
	assert.Equal(t, agent.Coder, d.TargetAgent)
	assert.Equal(t, agent.SourceExplicit, d.Source)

	rec = h.do(t, http.MethodPost, "/v1/route", map[string]any{"text": "good morning"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	d = decodeBody[agent.RoutingDecision](t, rec)
	assert.Equal(t, agent.Orchestrator, d.TargetAgent)
	assert.Equal(t, agent.SourceFallback, d.Source)

	summary, err := h.store.SummarizeDecisions(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
}

func TestRouteValidation(t *testing.T) {
	h := newHarness(t, testSecret)

	rec := h.do(t, http.MethodPost, "/v1/route", map[string]any{"text": ""}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	require.NotEmpty(t, resp.Fields)
	assert.Equal(t, "text", resp.Fields[0].Field)
	assert.Equal(t, "required", resp.Fields[0].Rule)

	rec = h.do(t, http.MethodPost, "/v1/route", map[string]any{"text": "hi", "current_agent": "plumber"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp = decodeBody[errorResponse](t, rec)
	assert.Equal(t, "agent_role", resp.Fields[0].Rule)

	rec = h.do(t, http.MethodPost, "/v1/route", map[string]any{"text": "hi", "bogus": true}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandoffEndpoints(t *testing.T) {
	h := newHarness(t, testSecret)

	rec := h.do(t, http.MethodPost, "/v1/handoff/decide", map[string]any{
		"text":          "ask the coder to review my PR",
		"current_agent": "orchestrator",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decodeBody[handoff.Decision](t, rec)
	assert.True(t, decision.ShouldHandoff)
	require.NotNil(t, decision.Handoff)
	assert.Equal(t, agent.Coder, decision.Handoff.TargetAgent)

	rec = h.do(t, http.MethodPost, "/v1/handoff/execute", map[string]any{
		"from":         "orchestrator",
		"target_agent": "coder",
		"reason":       "code review",
		"context":      map[string]any{"repo": "switchboard"},
		"message":      "review my PR",
		"user_id":      "alice",
		"thread_id":    "t-1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[handoff.Result](t, rec)
	require.True(t, result.Success)
	assert.Equal(t, "switchboard", result.Record.Handoff.Context["repo"])

	rec = h.do(t, http.MethodPost, "/v1/handoff/execute", map[string]any{
		"from": "finance", "target_agent": "home", "user_id": "alice",
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	result = decodeBody[handoff.Result](t, rec)
	require.NotNil(t, result.Failure)
	assert.Equal(t, handoff.FailureTransitionNotAllowed, result.Failure.Code)

	rec = h.do(t, http.MethodPost, "/v1/handoff/execute", map[string]any{
		"from": "orchestrator", "target_agent": "plumber", "user_id": "alice",
	}, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	result = decodeBody[handoff.Result](t, rec)
	require.NotNil(t, result.Failure)
	assert.Equal(t, handoff.FailureUnknownAgent, result.Failure.Code)
	assert.Contains(t, result.Failure.Message, `"plumber"`)

	rec = h.do(t, http.MethodPost, "/v1/handoff/execute", map[string]any{
		"from": "janitor", "target_agent": "coder", "user_id": "alice",
	}, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	result = decodeBody[handoff.Result](t, rec)
	require.NotNil(t, result.Failure)
	assert.Equal(t, handoff.FailureUnknownAgent, result.Failure.Code)
	assert.Equal(t, `unknown source agent "janitor"`, result.Failure.Message)

	rec = h.do(t, http.MethodGet, "/v1/handoff/history?user_id=alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]agent.HandoffRecord](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, agent.Coder, history[0].Handoff.TargetAgent)

	rec = h.do(t, http.MethodGet, "/v1/handoff/history", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodGet, "/v1/handoff/history?user_id=alice&limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackAndAdminFlow(t *testing.T) {
	h := newHarness(t, testSecret)

	rec := h.do(t, http.MethodPost, "/v1/feedback", map[string]any{
		"original_query":     "my bank app keeps crashing",
		"selected_agent":     "finance",
		"routing_confidence": 0.6,
		"routing_source":     "keyword",
		"feedback_type":      "incorrect",
		"correct_agent":      "coder",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody[map[string]string](t, rec)["id"])

	rec = h.do(t, http.MethodPost, "/v1/feedback", map[string]any{
		"original_query":     "x",
		"selected_agent":     "finance",
		"routing_confidence": 0.6,
		"routing_source":     "keyword",
		"feedback_type":      "incorrect",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "incorrect feedback needs a correct agent")

	rec = h.do(t, http.MethodPost, "/v1/admin/feedback/process", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/admin/feedback/process", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := IssueAdminToken(testSecret, "cron", time.Minute)
	require.NoError(t, err)
	rec = h.do(t, http.MethodPost, "/v1/admin/feedback/process", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[map[string]int](t, rec)["promoted"])

	rec = h.do(t, http.MethodPost, "/v1/admin/examples/seed", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[map[string]int](t, rec)["seeded"])

	rec = h.do(t, http.MethodGet, "/v1/stats?window=1h", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody[feedback.Stats](t, rec)
	assert.Equal(t, 1, stats.Feedback[agent.FeedbackIncorrect])
	assert.Equal(t, 1, stats.Examples[agent.Coder])
	assert.Zero(t, stats.PendingFeedback)

	rec = h.do(t, http.MethodGet, "/v1/stats?since=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	h := newHarness(t, "")
	rec := h.do(t, http.MethodPost, "/v1/admin/examples/seed", nil, "anything")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminTokens(t *testing.T) {
	token, err := IssueAdminToken(testSecret, "ops", time.Minute)
	require.NoError(t, err)
	claims, err := ParseAdminToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	_, err = ParseAdminToken("other-secret", token)
	assert.Error(t, err)

	expired, err := IssueAdminToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAdminToken(testSecret, expired)
	assert.Error(t, err)

	_, err = IssueAdminToken("", "ops", time.Minute)
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, testSecret)
	h.do(t, http.MethodPost, "/v1/route", map[string]any{"text": "ask the coder to review my PR"}, "")

	rec := h.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `switchboard_routing_decisions_total{agent="coder",source="explicit"} 1`)
	assert.Contains(t, body, `route="/v1/route"`)
}
