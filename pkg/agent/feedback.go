package agent

import (
	"strings"
	"time"
)

// FeedbackType classifies a user's verdict on a past routing decision.
type FeedbackType string

const (
	FeedbackCorrect     FeedbackType = "correct"
	FeedbackIncorrect   FeedbackType = "incorrect"
	FeedbackImproved    FeedbackType = "improved"
	FeedbackToolFailure FeedbackType = "tool_failure"
	FeedbackSlow        FeedbackType = "slow"
)

// FeedbackTypes lists every feedback type.
func FeedbackTypes() []FeedbackType {
	return []FeedbackType{FeedbackCorrect, FeedbackIncorrect, FeedbackImproved, FeedbackToolFailure, FeedbackSlow}
}

// ParseFeedbackType resolves a feedback type name.
func ParseFeedbackType(s string) (FeedbackType, error) {
	ft := FeedbackType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FeedbackTypes() {
		if ft == known {
			return ft, nil
		}
	}
	return "", invalid("feedback_type", "unknown feedback type %q", s)
}

// RequiresCorrection reports whether entries of this type must name the
// agent that should have handled the request. These are also the types that
// get promoted into the example corpus.
func (t FeedbackType) RequiresCorrection() bool {
	return t == FeedbackIncorrect || t == FeedbackImproved
}

// FeedbackEntry is a user correction to a past routing decision. It is
// mutated once, when ProcessedAt is set, and never deleted.
type FeedbackEntry struct {
	ID                string       `json:"id"`
	OriginalQuery     string       `json:"original_query"`
	SelectedAgent     AgentRole    `json:"selected_agent"`
	RoutingConfidence float64      `json:"routing_confidence"`
	RoutingSource     Source       `json:"routing_source"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	CorrectAgent      *AgentRole   `json:"correct_agent,omitempty"`
	UserComment       string       `json:"user_comment,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	ProcessedAt       *time.Time   `json:"processed_at,omitempty"`
}

// Validate enforces the feedback invariants.
func (f FeedbackEntry) Validate() error {
	if strings.TrimSpace(f.OriginalQuery) == "" {
		return invalid("original_query", "must not be empty")
	}
	if !f.SelectedAgent.Valid() {
		return invalid("selected_agent", "invalid agent role %d", uint8(f.SelectedAgent))
	}
	if f.RoutingConfidence < 0 || f.RoutingConfidence > 1 {
		return invalid("routing_confidence", "%.4f outside [0,1]", f.RoutingConfidence)
	}
	if _, err := ParseSource(string(f.RoutingSource)); err != nil {
		return err
	}
	if _, err := ParseFeedbackType(string(f.FeedbackType)); err != nil {
		return err
	}
	if f.CorrectAgent != nil && !f.CorrectAgent.Valid() {
		return invalid("correct_agent", "invalid agent role %d", uint8(*f.CorrectAgent))
	}
	if f.FeedbackType.RequiresCorrection() && f.CorrectAgent == nil {
		return invalid("correct_agent", "required when feedback_type is %q", f.FeedbackType)
	}
	if f.FeedbackType == FeedbackIncorrect && *f.CorrectAgent == f.SelectedAgent {
		return invalid("correct_agent", "must differ from selected_agent for incorrect feedback")
	}
	return nil
}

// Processed reports whether the entry has been folded into the corpus.
func (f FeedbackEntry) Processed() bool {
	return f.ProcessedAt != nil
}
