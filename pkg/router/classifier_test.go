package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/agent"
)

func TestParseClassifierResponse(t *testing.T) {
	pick, err := parseClassifierResponse("```json\n{\"agent\":\"Travel\",\"confidence\":0.7,\"reason\":\"trip\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, agent.Travel, pick.role)
	assert.Equal(t, "trip", pick.Reason)

	for _, bad := range []string{
		`not json`,
		`{"confidence":0.5}`,
		`{"agent":"plumber","confidence":0.5}`,
		`{"agent":"coder","confidence":1.5}`,
	} {
		_, err := parseClassifierResponse(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildClassifierPromptListsEveryRole(t *testing.T) {
	prompt := buildClassifierPrompt("book me a hotel")
	for _, role := range agent.AllRoles() {
		assert.Contains(t, prompt, role.String())
	}
	assert.Contains(t, prompt, "book me a hotel")
}

func TestOracleSuccess(t *testing.T) {
	cfg := routingConfig(true)
	obs := &recordingObserver{}
	mock := adapter.NewMockAdapterWithResponses(nil, `{"agent":"coder","confidence":0.9,"reason":"mentions a stack trace"}`)
	o := NewClassifierOracle(mock, cfg.Classifier, WithoutRateLimit(), WithOracleObserver(obs))

	d := o.Classify(context.Background(), "what does this stack trace mean")
	assert.Equal(t, agent.Coder, d.TargetAgent)
	assert.Equal(t, agent.SourceClassifier, d.Source)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)

	// Same text, different spacing and case: served from the cache.
	d = o.Classify(context.Background(), "What does this  stack trace mean")
	assert.Equal(t, agent.Coder, d.TargetAgent)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, []string{OracleOK, OracleCached}, obs.outcomes)
}

func TestOracleFallsBackOnInvalidResponse(t *testing.T) {
	cfg := routingConfig(true)
	mock := adapter.NewMockAdapterWithResponses(nil, `{"agent":"astronaut","confidence":0.9}`)
	o := NewClassifierOracle(mock, cfg.Classifier, WithoutRateLimit())

	d := o.Classify(context.Background(), "fly me to the moon")
	assert.Equal(t, agent.Orchestrator, d.TargetAgent)
	assert.Equal(t, agent.SourceFallback, d.Source)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestOracleFallsBackOnTimeout(t *testing.T) {
	cfg := routingConfig(true)
	cfg.Classifier.Timeout = 20 * time.Millisecond
	cfg.Classifier.MaxRetries = 1
	obs := &recordingObserver{}
	a := &blockingAdapter{}
	o := NewClassifierOracle(a, cfg.Classifier, WithoutRateLimit(), WithOracleObserver(obs))

	start := time.Now()
	d := o.Classify(context.Background(), "anything")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, agent.SourceFallback, d.Source)
	assert.Equal(t, agent.Orchestrator, d.TargetAgent)
	assert.LessOrEqual(t, a.calls, 2)
	assert.Equal(t, []string{OracleTimeout}, obs.outcomes)
}

func TestOracleRetriesTransientErrorOnce(t *testing.T) {
	cfg := routingConfig(true)
	cfg.Classifier.MaxRetries = 1
	a := &scriptedAdapter{
		errs:    []error{&adapter.AdapterError{Status: 503, Err: errUpstream}},
		content: `{"agent":"finance","confidence":0.8,"reason":"money"}`,
	}
	d := NewClassifierOracle(a, cfg.Classifier, WithoutRateLimit()).Classify(context.Background(), "pay rent")
	assert.Equal(t, agent.Finance, d.TargetAgent)
	assert.Equal(t, 2, a.calls)

	a = &scriptedAdapter{errs: []error{
		&adapter.AdapterError{Status: 503, Err: errUpstream},
		&adapter.AdapterError{Status: 503, Err: errUpstream},
		&adapter.AdapterError{Status: 503, Err: errUpstream},
	}}
	d = NewClassifierOracle(a, cfg.Classifier, WithoutRateLimit()).Classify(context.Background(), "pay rent")
	assert.Equal(t, agent.SourceFallback, d.Source)
	assert.Equal(t, 2, a.calls, "at most one retry")
}

func TestOracleRateLimited(t *testing.T) {
	cfg := routingConfig(true)
	cfg.Classifier.RequestsPerSecond = 0.0001
	cfg.Classifier.Burst = 1
	mock := adapter.NewMockAdapterWithResponses(nil, `{"agent":"home","confidence":0.9}`)
	o := NewClassifierOracle(mock, cfg.Classifier)

	assert.Equal(t, agent.Home, o.Classify(context.Background(), "first").TargetAgent)
	d := o.Classify(context.Background(), "second")
	assert.Equal(t, agent.SourceFallback, d.Source)
	assert.Equal(t, 1, mock.Calls())
}
