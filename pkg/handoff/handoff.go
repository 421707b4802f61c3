// Package handoff validates and records transfers of control between agents.
// The orchestrator is the hub: it may hand off to any specialist and every
// specialist may return to it, but specialists never hand off to each other.
package handoff

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/router"
)

// ReservedContextKey holds protocol metadata in a handoff's context.
const ReservedContextKey = "_handoff"

type roleKind uint8

const (
	hub roleKind = iota + 1
	spoke
)

var roleKinds = [...]roleKind{
	agent.Orchestrator: hub,
	agent.Coder:        spoke,
	agent.Finance:      spoke,
	agent.Home:         spoke,
	agent.Health:       spoke,
	agent.Travel:       spoke,
	agent.Research:     spoke,
}

var _ = [1]struct{}{}[len(roleKinds)-agent.RoleTableSize]

// CanHandoff reports whether control may pass from one role to another.
func CanHandoff(from, to agent.AgentRole) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	return roleKinds[from] == hub || roleKinds[to] == hub
}

// Reason explains a Decide outcome.
type Reason string

const (
	ReasonHandoff              Reason = "handoff"
	ReasonSameAgent            Reason = "same_agent"
	ReasonTransitionNotAllowed Reason = "transition_not_allowed"
	ReasonLowConfidence        Reason = "low_confidence"
)

// Decision is the outcome of Decide. Handoff is set only when ShouldHandoff is.
type Decision struct {
	ShouldHandoff bool                  `json:"should_handoff"`
	Reason        Reason                `json:"reason"`
	Handoff       *agent.Handoff        `json:"handoff,omitempty"`
	Routing       agent.RoutingDecision `json:"routing"`
}

// FailureCode classifies a rejected Execute call.
type FailureCode string

const (
	FailureUnknownAgent         FailureCode = "unknown_agent"
	FailureTransitionNotAllowed FailureCode = "transition_not_allowed"
	FailureReservedContextKey   FailureCode = "reserved_context_key"
	FailureMissingUser          FailureCode = "missing_user"
	FailureRecordFailed         FailureCode = "record_failed"
)

// Failure is a typed handoff rejection.
type Failure struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("handoff %s: %s", f.Code, f.Message)
}

// Result is the outcome of Execute. Exactly one of Record and Failure is set.
type Result struct {
	Success bool                 `json:"success"`
	Record  *agent.HandoffRecord `json:"record,omitempty"`
	Failure *Failure             `json:"failure,omitempty"`
}

// Router classifies text.
type Router interface {
	Route(ctx context.Context, text string, opts router.RouteOptions) (agent.RoutingDecision, error)
}

// Store persists handoff records.
type Store interface {
	AppendHandoff(ctx context.Context, rec agent.HandoffRecord) error
	ListHandoffs(ctx context.Context, userID, threadID string, limit int) ([]agent.HandoffRecord, error)
}

// Observer counts handoff outcomes.
type Observer interface {
	ObserveHandoff(outcome string)
}

// Protocol decides and executes handoffs.
type Protocol struct {
	router    Router
	store     Store
	threshold float64
	observer  Observer
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithObserver reports outcomes to a metrics sink.
func WithObserver(o Observer) Option {
	return func(p *Protocol) {
		p.observer = o
	}
}

// WithLogger sets the protocol's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		p.now = now
	}
}

// New creates a protocol. store may be nil, in which case executed handoffs
// are not persisted.
func New(r Router, store Store, threshold float64, opts ...Option) *Protocol {
	p := &Protocol{
		router:    r,
		store:     store,
		threshold: threshold,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "handoff"))
	return p
}

// Decide routes text and reports whether control should move away from
// current.
func (p *Protocol) Decide(ctx context.Context, text string, current agent.AgentRole) (Decision, error) {
	if !current.Valid() {
		return Decision{}, &agent.ValidationError{Field: "current_agent", Message: "invalid agent role"}
	}
	d, err := p.router.Route(ctx, text, router.RouteOptions{Current: current})
	if err != nil {
		return Decision{}, err
	}

	out := Decision{Routing: d}
	switch {
	case d.TargetAgent == current:
		out.Reason = ReasonSameAgent
	case !CanHandoff(current, d.TargetAgent):
		out.Reason = ReasonTransitionNotAllowed
	case d.Confidence < p.threshold:
		out.Reason = ReasonLowConfidence
	default:
		out.ShouldHandoff = true
		out.Reason = ReasonHandoff
		out.Handoff = &agent.Handoff{
			From:        current,
			TargetAgent: d.TargetAgent,
			Reason:      d.Rationale,
		}
	}
	p.observe("decide_" + string(out.Reason))
	return out, nil
}

// Execute re-validates h, stamps a record and persists it. Caller context
// is copied; protocol metadata goes under ReservedContextKey, which callers
// may not set themselves.
func (p *Protocol) Execute(ctx context.Context, h agent.Handoff, message, userID, threadID string) Result {
	if f := p.validate(h, userID); f != nil {
		p.observe("execute_" + string(f.Code))
		p.logger.Info("handoff rejected",
			zap.Stringer("from", h.From),
			zap.Stringer("to", h.TargetAgent),
			zap.String("code", string(f.Code)))
		return Result{Failure: f}
	}

	ts := p.now().UTC()
	id := uuid.NewString()
	merged := make(map[string]any, len(h.Context)+1)
	maps.Copy(merged, h.Context)
	meta := map[string]any{
		"id":        id,
		"from":      h.From.String(),
		"to":        h.TargetAgent.String(),
		"reason":    h.Reason,
		"timestamp": ts.Format(time.RFC3339Nano),
	}
	if threadID != "" {
		meta["thread_id"] = threadID
	}
	merged[ReservedContextKey] = meta

	rec := agent.HandoffRecord{
		ID: id,
		Handoff: agent.Handoff{
			From:        h.From,
			TargetAgent: h.TargetAgent,
			Reason:      h.Reason,
			Context:     merged,
		},
		Message:   message,
		UserID:    userID,
		ThreadID:  threadID,
		Timestamp: ts,
	}

	if p.store != nil {
		if err := p.store.AppendHandoff(ctx, rec); err != nil {
			p.logger.Error("failed to record handoff", zap.Error(err))
			p.observe("execute_" + string(FailureRecordFailed))
			return Result{Failure: &Failure{Code: FailureRecordFailed, Message: err.Error()}}
		}
	}

	p.observe("execute_ok")
	p.logger.Info("handoff executed",
		zap.String("id", id),
		zap.Stringer("from", h.From),
		zap.Stringer("to", h.TargetAgent),
		zap.String("user_id", userID))
	return Result{Success: true, Record: &rec}
}

func (p *Protocol) validate(h agent.Handoff, userID string) *Failure {
	if !h.From.Valid() {
		return &Failure{Code: FailureUnknownAgent, Message: fmt.Sprintf("unknown source agent %d", uint8(h.From))}
	}
	if !h.TargetAgent.Valid() {
		return &Failure{Code: FailureUnknownAgent, Message: fmt.Sprintf("unknown target agent %d", uint8(h.TargetAgent))}
	}
	if !CanHandoff(h.From, h.TargetAgent) {
		msg := fmt.Sprintf("%s may not hand off to %s", h.From, h.TargetAgent)
		if h.From.IsSpecialist() && h.TargetAgent.IsSpecialist() {
			msg += "; return to the orchestrator first"
		}
		return &Failure{Code: FailureTransitionNotAllowed, Message: msg}
	}
	if strings.TrimSpace(userID) == "" {
		return &Failure{Code: FailureMissingUser, Message: "user id is required"}
	}
	if _, ok := h.Context[ReservedContextKey]; ok {
		return &Failure{Code: FailureReservedContextKey, Message: fmt.Sprintf("context key %q is reserved", ReservedContextKey)}
	}
	return nil
}

// History lists persisted handoffs for a user, newest first.
func (p *Protocol) History(ctx context.Context, userID, threadID string, limit int) ([]agent.HandoffRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &agent.ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if p.store == nil {
		return nil, nil
	}
	return p.store.ListHandoffs(ctx, userID, threadID, limit)
}

func (p *Protocol) observe(outcome string) {
	if p.observer != nil {
		p.observer.ObserveHandoff(outcome)
	}
}
