package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/zen-systems/switchboard/pkg/agent"
)

// Stats summarizes routing quality over a window.
type Stats struct {
	Since          time.Time                  `json:"since"`
	Decisions      int                        `json:"decisions"`
	ByAgent        map[agent.AgentRole]int    `json:"by_agent"`
	BySource       map[agent.Source]int       `json:"by_source"`
	MeanConfidence float64                    `json:"mean_confidence"`
	Feedback       map[agent.FeedbackType]int `json:"feedback"`
	Judged         int                        `json:"judged"`
	// Accuracy is correct / (correct+incorrect+improved), or zero when
	// nothing has been judged.
	Accuracy        float64                 `json:"accuracy"`
	PendingFeedback int                     `json:"pending_feedback"`
	Examples        map[agent.AgentRole]int `json:"examples"`
	CorpusVersion   int64                   `json:"corpus_version"`
}

// RoutingStats aggregates decisions, feedback and the corpus. It only reads.
func (l *Loop) RoutingStats(ctx context.Context, since time.Time) (Stats, error) {
	decisions, err := l.store.SummarizeDecisions(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("summarize decisions: %w", err)
	}
	fb, err := l.store.SummarizeFeedback(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("summarize feedback: %w", err)
	}
	examples, err := l.store.CountExamples(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count examples: %w", err)
	}
	version, err := l.store.CorpusVersion(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read corpus version: %w", err)
	}

	s := Stats{
		Since:           since.UTC(),
		Decisions:       decisions.Total,
		ByAgent:         decisions.ByAgent,
		BySource:        decisions.BySource,
		MeanConfidence:  decisions.MeanConfidence,
		Feedback:        fb.ByType,
		PendingFeedback: fb.Pending,
		Examples:        examples,
		CorpusVersion:   version,
	}
	correct := fb.ByType[agent.FeedbackCorrect]
	s.Judged = correct + fb.ByType[agent.FeedbackIncorrect] + fb.ByType[agent.FeedbackImproved]
	if s.Judged > 0 {
		s.Accuracy = float64(correct) / float64(s.Judged)
	}
	return s, nil
}
