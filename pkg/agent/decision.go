package agent

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Source names the routing tier that produced a decision.
type Source string

const (
	SourceExplicit   Source = "explicit"
	SourceKeyword    Source = "keyword"
	SourceVector     Source = "vector"
	SourceClassifier Source = "classifier"
	SourceFallback   Source = "fallback"
)

// Sources lists the tiers in priority order.
func Sources() []Source {
	return []Source{SourceExplicit, SourceKeyword, SourceVector, SourceClassifier, SourceFallback}
}

// ParseSource resolves a tier name.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources() {
		if src == known {
			return src, nil
		}
	}
	return "", invalid("source", "unknown routing source %q", s)
}

func (s Source) Value() (driver.Value, error) { return string(s), nil }

func (s *Source) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*s = Source(v)
	case []byte:
		*s = Source(v)
	case nil:
		*s = ""
	default:
		return fmt.Errorf("routing source: unsupported scan type %T", src)
	}
	return nil
}

// RoutingDecision is the outcome of classifying one request. It is a value;
// callers own their copy.
type RoutingDecision struct {
	TargetAgent AgentRole `json:"target_agent"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `json:"rationale"`
	Source      Source    `json:"source"`
}

// Validate checks the closed-set and range invariants.
func (d RoutingDecision) Validate() error {
	if !d.TargetAgent.Valid() {
		return invalid("target_agent", "invalid agent role %d", uint8(d.TargetAgent))
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return invalid("confidence", "%.4f outside [0,1]", d.Confidence)
	}
	if _, err := ParseSource(string(d.Source)); err != nil {
		return err
	}
	return nil
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// RoutingExample is one labelled utterance in the example corpus.
type RoutingExample struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Label     AgentRole `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionRecord is a logged routing decision.
type DecisionRecord struct {
	ID           string          `json:"id"`
	Query        string          `json:"query"`
	CurrentAgent AgentRole       `json:"current_agent,omitempty"`
	Decision     RoutingDecision `json:"decision"`
	CreatedAt    time.Time       `json:"created_at"`
}
