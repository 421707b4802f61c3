package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
)

// Oracle outcomes reported to the Observer.
const (
	OracleOK          = "ok"
	OracleCached      = "cached"
	OracleError       = "error"
	OracleTimeout     = "timeout"
	OracleInvalid     = "invalid"
	OracleRateLimited = "rate_limited"
)

// ClassifierOracle asks an LLM to pick a role. Every failure degrades to a
// fallback decision for the orchestrator; Classify never returns an error.
type ClassifierOracle struct {
	adapter            adapter.Adapter
	model              string
	timeout            time.Duration
	retry              adapter.RetryPolicy
	fallbackConfidence float64
	cache              *gocache.Cache
	limiter            *rate.Limiter
	observer           Observer
	logger             *zap.Logger
}

// OracleOption configures a ClassifierOracle.
type OracleOption func(*ClassifierOracle)

// WithOracleLogger sets the oracle's logger.
func WithOracleLogger(logger *zap.Logger) OracleOption {
	return func(o *ClassifierOracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOracleObserver reports call outcomes and latency.
func WithOracleObserver(obs Observer) OracleOption {
	return func(o *ClassifierOracle) {
		o.observer = obs
	}
}

// WithoutRateLimit disables the token bucket.
func WithoutRateLimit() OracleOption {
	return func(o *ClassifierOracle) {
		o.limiter = nil
	}
}

// NewClassifierOracle creates an oracle backed by a. The cache and limiter
// belong to this instance.
func NewClassifierOracle(a adapter.Adapter, cfg config.ClassifierConfig, opts ...OracleOption) *ClassifierOracle {
	o := &ClassifierOracle{
		adapter:            a,
		model:              cfg.Model,
		timeout:            cfg.Timeout,
		fallbackConfidence: cfg.FallbackConfidence,
		retry: adapter.RetryPolicy{
			MaxRetries:  min(cfg.MaxRetries, 1),
			BaseBackoff: cfg.RetryBackoff,
			MaxBackoff:  cfg.RetryBackoff * 4,
		},
		logger: zap.NewNop(),
	}
	if cfg.CacheTTL > 0 {
		o.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	if cfg.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "classifier"), zap.String("adapter", a.Name()))
	return o
}

// Classify returns a classifier decision, or the orchestrator fallback when
// the call fails, times out, is rate limited or returns something unusable.
func (o *ClassifierOracle) Classify(ctx context.Context, text string) agent.RoutingDecision {
	start := time.Now()
	key := cacheKey(text)
	if o.cache != nil {
		if cached, ok := o.cache.Get(key); ok {
			o.observe(OracleCached, start)
			return cached.(agent.RoutingDecision)
		}
	}
	if o.limiter != nil && !o.limiter.Allow() {
		o.observe(OracleRateLimited, start)
		return o.fallback("classifier rate limited")
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, report, err := adapter.Call(callCtx, o.adapter, o.model, buildClassifierPrompt(text), o.retry)
	if err != nil {
		outcome := OracleError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OracleTimeout
		}
		o.observe(outcome, start)
		log := o.logger.Warn
		if adapter.IsAuth(err) {
			log = o.logger.Error
		}
		log("classifier call failed",
			zap.String("model", o.model),
			zap.Int("retries", report.Retries),
			zap.Error(err))
		return o.fallback(fmt.Sprintf("classifier unavailable: %s", outcome))
	}

	pick, err := parseClassifierResponse(resp.Content)
	if err != nil {
		o.observe(OracleInvalid, start)
		o.logger.Warn("classifier response invalid", zap.Error(err))
		return o.fallback("classifier response invalid")
	}

	d := decision(pick.role, pick.Confidence, pick.Reason, agent.SourceClassifier)
	if o.cache != nil {
		o.cache.Set(key, d, gocache.DefaultExpiration)
	}
	o.observe(OracleOK, start)
	o.logger.Debug("classified",
		zap.Stringer("agent", d.TargetAgent),
		zap.Float64("confidence", d.Confidence),
		zap.Int("total_tokens", report.Usage.TotalTokens),
		zap.Duration("elapsed", report.Duration))
	return d
}

func (o *ClassifierOracle) fallback(reason string) agent.RoutingDecision {
	return decision(agent.Orchestrator, o.fallbackConfidence, reason, agent.SourceFallback)
}

func (o *ClassifierOracle) observe(outcome string, start time.Time) {
	if o.observer != nil {
		o.observer.ObserveOracleCall(outcome, time.Since(start))
	}
}

func cacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

type classifierPick struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`

	role agent.AgentRole
}

func parseClassifierResponse(content string) (*classifierPick, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var pick classifierPick
	if err := json.Unmarshal([]byte(content), &pick); err != nil {
		return nil, err
	}
	if pick.Agent == "" {
		return nil, fmt.Errorf("missing agent")
	}
	role, err := agent.ParseAgentRole(pick.Agent)
	if err != nil {
		return nil, err
	}
	if pick.Confidence < 0 || pick.Confidence > 1 {
		return nil, fmt.Errorf("confidence %.2f out of range", pick.Confidence)
	}
	pick.role = role
	if pick.Reason == "" {
		pick.Reason = "classified as " + role.String()
	}
	return &pick, nil
}

func buildClassifierPrompt(userText string) string {
	var sb strings.Builder
	sb.WriteString("You are a routing classifier. Choose the agent best suited to handle the user's message.\n")
	sb.WriteString("Return ONLY JSON: {\"agent\":\"...\",\"confidence\":0-1,\"reason\":\"...\"}.\n\n")
	sb.WriteString("Agents:\n")
	for _, role := range agent.AllRoles() {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", role, role.Description()))
	}
	sb.WriteString("\nUser message:\n")
	sb.WriteString(userText)
	sb.WriteString("\n")
	return sb.String()
}
