package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/corpus"
)

type stubOracle struct {
	mu       sync.Mutex
	decision agent.RoutingDecision
	calls    int
}

func (o *stubOracle) Classify(context.Context, string) agent.RoutingDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.decision
}

func (o *stubOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type mapEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *mapEmbedder) Name() string    { return "map" }
func (e *mapEmbedder) Dimensions() int { return 2 }

func (e *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

type staticSource struct {
	snap *corpus.Snapshot
	err  error
}

func (s staticSource) Snapshot(context.Context) (*corpus.Snapshot, error) {
	return s.snap, s.err
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions []agent.RoutingDecision
	outcomes  []string
}

func (o *recordingObserver) ObserveDecision(d agent.RoutingDecision, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

func (o *recordingObserver) ObserveOracleCall(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type memoryRecorder struct {
	records []agent.DecisionRecord
	err     error
}

func (r *memoryRecorder) RecordDecision(_ context.Context, rec agent.DecisionRecord) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

// blockingAdapter waits for its context to end.
type blockingAdapter struct{ calls int }

func (a *blockingAdapter) Name() string     { return "blocking" }
func (a *blockingAdapter) Models() []string { return []string{"blocking-1"} }

func (a *blockingAdapter) Generate(ctx context.Context, _, _ string) (*adapter.Response, error) {
	a.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

// scriptedAdapter fails with errs in order, then answers with content.
type scriptedAdapter struct {
	errs    []error
	content string
	calls   int
}

func (a *scriptedAdapter) Name() string     { return "scripted" }
func (a *scriptedAdapter) Models() []string { return []string{"scripted-1"} }

func (a *scriptedAdapter) Generate(_ context.Context, model, _ string) (*adapter.Response, error) {
	a.calls++
	if a.calls <= len(a.errs) {
		return nil, a.errs[a.calls-1]
	}
	return &adapter.Response{Content: a.content, Model: model}, nil
}

var errUpstream = errors.New("upstream exploded")

func routingConfig(classifier bool) *config.RoutingConfig {
	cfg := config.DefaultRoutingConfig()
	cfg.Classifier.Enabled = &classifier
	cfg.Classifier.RetryBackoff = time.Millisecond
	return cfg
}
