// Package router classifies free text into an agent role. Tiers run in a
// fixed order (explicit mention, keyword, vector, classifier, fallback) and
// the first one to clear its threshold answers.
package router

import "github.com/zen-systems/switchboard/pkg/agent"

// Candidate is one role's keyword score for a text.
type Candidate struct {
	Role     agent.AgentRole `json:"role"`
	Score    int             `json:"score"`
	Triggers []string        `json:"triggers,omitempty"`
}

// RouteOptions tune a single Route call.
type RouteOptions struct {
	// Current is the role handling the conversation. It is recorded with the
	// decision but never used to classify.
	Current agent.AgentRole
	// ForceClassifier disables the keyword and vector short-circuits so the
	// classifier always gets a say. Ignored when the classifier is disabled.
	ForceClassifier bool
}

func decision(role agent.AgentRole, confidence float64, rationale string, source agent.Source) agent.RoutingDecision {
	return agent.RoutingDecision{
		TargetAgent: role,
		Confidence:  agent.ClampConfidence(confidence),
		Rationale:   rationale,
		Source:      source,
	}
}
