package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/corpus"
)

func TestCollectorObservesDecisions(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.ObserveDecision(agent.RoutingDecision{TargetAgent: agent.Coder, Confidence: 0.9, Source: agent.SourceKeyword}, time.Millisecond)
	c.ObserveDecision(agent.RoutingDecision{TargetAgent: agent.Coder, Confidence: 0.8, Source: agent.SourceKeyword}, time.Millisecond)
	c.ObserveDecision(agent.RoutingDecision{TargetAgent: agent.Orchestrator, Confidence: 0.3, Source: agent.SourceFallback}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("coder", "keyword")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("orchestrator", "fallback")))
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("test", nil)

	c.ObserveOracleCall("ok", 200*time.Millisecond)
	c.ObserveOracleCall("timeout", 10*time.Second)
	c.ObserveHandoff("execute_ok")
	c.ObserveFeedback(agent.FeedbackIncorrect)
	c.ObservePromoted(3)
	c.RecordHTTPRequest("POST", "/v1/route", 200, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.oracleCallsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handoffsTotal.WithLabelValues("execute_ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.feedbackTotal.WithLabelValues("incorrect")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.promotedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/route", "200")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("test", nil)
	b := NewCollector("test", nil)
	a.ObserveHandoff("decide_handoff")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.handoffsTotal.WithLabelValues("decide_handoff")))
}

func TestHandlerExposesCorpusGauges(t *testing.T) {
	c := NewCollector("sb", nil)
	src := corpus.New(nil, nil)
	c.WatchCorpus("sb", src)
	src.Publish(corpus.NewSnapshot(7, []agent.RoutingExample{
		{ID: "1", Text: "fix it", Label: agent.Coder, Embedding: []float32{1, 0}},
		{ID: "2", Text: "no vector", Label: agent.Home},
	}))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "sb_corpus_version 7"), body)
	assert.True(t, strings.Contains(body, "sb_corpus_examples 1"), body)
}
