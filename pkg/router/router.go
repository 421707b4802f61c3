package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
)

// Oracle is the external classifier tier. Implementations must degrade to
// a fallback decision instead of failing.
type Oracle interface {
	Classify(ctx context.Context, text string) agent.RoutingDecision
}

// DecisionRecorder persists routed decisions for later statistics.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, rec agent.DecisionRecord) error
}

// Observer receives routing telemetry.
type Observer interface {
	ObserveDecision(d agent.RoutingDecision, elapsed time.Duration)
	ObserveOracleCall(outcome string, elapsed time.Duration)
}

const confirmedByKeyword = "confirmed by keyword match"

// Engine runs the routing tiers in priority order.
type Engine struct {
	cfg      *config.RoutingConfig
	explicit *ExplicitMatcher
	keyword  *KeywordScorer
	vector   *VectorRouter
	oracle   Oracle
	recorder DecisionRecorder
	observer Observer
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithVectorRouter enables the nearest-neighbour tier.
func WithVectorRouter(v *VectorRouter) EngineOption {
	return func(e *Engine) {
		e.vector = v
	}
}

// WithOracle sets the classifier tier.
func WithOracle(o Oracle) EngineOption {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithRecorder persists every decision.
func WithRecorder(r DecisionRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithObserver reports decisions to a metrics sink.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a routing engine from the routing policy.
func NewEngine(cfg *config.RoutingConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:      cfg,
		explicit: NewExplicitMatcher(cfg),
		keyword:  NewKeywordScorer(cfg),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "router"))
	return e
}

// Keyword exposes the keyword tier for diagnostics.
func (e *Engine) Keyword() *KeywordScorer {
	return e.keyword
}

// Route classifies text. It fails only for empty text or when ctx is
// cancelled by the caller; every other problem degrades to a lower tier and,
// at worst, to the orchestrator fallback.
func (e *Engine) Route(ctx context.Context, text string, opts RouteOptions) (agent.RoutingDecision, error) {
	if strings.TrimSpace(text) == "" {
		return agent.RoutingDecision{}, &agent.ValidationError{Field: "text", Message: "must not be empty"}
	}
	if opts.Current != 0 && !opts.Current.Valid() {
		return agent.RoutingDecision{}, &agent.ValidationError{Field: "current_agent", Message: "invalid agent role"}
	}
	if err := cancelled(ctx); err != nil {
		return agent.RoutingDecision{}, err
	}

	start := time.Now()
	d, err := e.route(ctx, text, opts)
	if err != nil {
		return agent.RoutingDecision{}, err
	}
	e.finish(ctx, text, opts, d, time.Since(start))
	return d, nil
}

func (e *Engine) route(ctx context.Context, text string, opts RouteOptions) (agent.RoutingDecision, error) {
	if d, ok := e.explicit.Match(text); ok {
		return d, nil
	}

	force := opts.ForceClassifier && e.classifierEnabled()

	kw, kwOK := e.keyword.Score(text)
	if kwOK && !force && kw.Confidence >= e.cfg.Thresholds.Keyword {
		return kw, nil
	}

	if e.vector != nil && e.cfg.VectorEnabled() && !force {
		vd, ok := e.vector.Classify(ctx, text)
		if err := cancelled(ctx); err != nil {
			return agent.RoutingDecision{}, err
		}
		if ok && vd.Confidence >= e.cfg.Thresholds.Vector {
			return vd, nil
		}
	}

	if e.classifierEnabled() {
		od := e.oracle.Classify(ctx, text)
		if err := cancelled(ctx); err != nil {
			return agent.RoutingDecision{}, err
		}
		return e.reconcile(text, od, kw, kwOK), nil
	}

	return agent.RoutingDecision{
		TargetAgent: agent.Orchestrator,
		Confidence:  e.cfg.Thresholds.FallbackConfidence,
		Rationale:   "no tier cleared its threshold",
		Source:      agent.SourceFallback,
	}, nil
}

// reconcile combines the oracle's answer with the keyword tier. Agreement
// with the keyword best guess, even one below the score floor, earns a
// bonus capped at MaxBoosted. An answer already at or above the cap is left
// as it is. Without a boost the more confident decision wins and the
// oracle wins ties.
func (e *Engine) reconcile(text string, od, kw agent.RoutingDecision, kwOK bool) agent.RoutingDecision {
	if od.Source == agent.SourceClassifier && od.Confidence < e.cfg.Classifier.MaxBoosted {
		if best, ok := e.keyword.Best(text); ok && best.Role == od.TargetAgent {
			boosted := min(od.Confidence+e.cfg.Classifier.AgreementBonus, e.cfg.Classifier.MaxBoosted)
			od.Confidence = agent.ClampConfidence(boosted)
			if od.Rationale == "" {
				od.Rationale = confirmedByKeyword
			} else {
				od.Rationale += " (" + confirmedByKeyword + ")"
			}
			return od
		}
	}
	if kwOK && kw.Confidence > od.Confidence {
		return kw
	}
	return od
}

func (e *Engine) classifierEnabled() bool {
	return e.oracle != nil && e.cfg.ClassifierEnabled()
}

func (e *Engine) finish(ctx context.Context, text string, opts RouteOptions, d agent.RoutingDecision, elapsed time.Duration) {
	e.logger.Debug("routed",
		zap.Stringer("agent", d.TargetAgent),
		zap.String("source", string(d.Source)),
		zap.Float64("confidence", d.Confidence),
		zap.Duration("elapsed", elapsed))

	if e.observer != nil {
		e.observer.ObserveDecision(d, elapsed)
	}
	if e.recorder == nil {
		return
	}

	// The decision is already made; a caller deadline must not drop the record.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rec := agent.DecisionRecord{
		ID:           uuid.NewString(),
		Query:        text,
		CurrentAgent: opts.Current,
		Decision:     d,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.recorder.RecordDecision(recCtx, rec); err != nil {
		e.logger.Warn("failed to record decision", zap.Error(err))
	}
}

// cancelled reports caller cancellation. An expired deadline is not an
// error here; tiers that ran out of time have already degraded.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
