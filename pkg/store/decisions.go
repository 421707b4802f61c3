package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/zen-systems/switchboard/pkg/agent"
)

// RecordDecision appends a routing decision to the decision log.
func (s *Store) RecordDecision(ctx context.Context, rec agent.DecisionRecord) error {
	row := decisionRow{
		ID:           rec.ID,
		Query:        rec.Query,
		CurrentAgent: rec.CurrentAgent,
		TargetAgent:  rec.Decision.TargetAgent,
		Confidence:   rec.Decision.Confidence,
		Rationale:    rec.Decision.Rationale,
		Source:       rec.Decision.Source,
		CreatedAt:    rec.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// DecisionSummary aggregates logged decisions.
type DecisionSummary struct {
	Total          int
	MeanConfidence float64
	ByAgent        map[agent.AgentRole]int
	BySource       map[agent.Source]int
}

// SummarizeDecisions aggregates decisions made since the given time.
func (s *Store) SummarizeDecisions(ctx context.Context, since time.Time) (DecisionSummary, error) {
	db := s.db.WithContext(ctx).Model(&decisionRow{}).Where("created_at >= ?", since.UTC())
	sum := DecisionSummary{
		ByAgent:  make(map[agent.AgentRole]int),
		BySource: make(map[agent.Source]int),
	}

	var totals struct {
		N    int
		Mean float64
	}
	if err := db.Session(&gorm.Session{}).
		Select("count(*) as n, coalesce(avg(confidence), 0) as mean").
		Scan(&totals).Error; err != nil {
		return DecisionSummary{}, err
	}
	sum.Total = totals.N
	sum.MeanConfidence = totals.Mean

	var byAgent []struct {
		TargetAgent agent.AgentRole
		N           int
	}
	if err := db.Session(&gorm.Session{}).
		Select("target_agent, count(*) as n").Group("target_agent").
		Scan(&byAgent).Error; err != nil {
		return DecisionSummary{}, err
	}
	for _, r := range byAgent {
		sum.ByAgent[r.TargetAgent] = r.N
	}

	var bySource []struct {
		Source agent.Source
		N      int
	}
	if err := db.Session(&gorm.Session{}).
		Select("source, count(*) as n").Group("source").
		Scan(&bySource).Error; err != nil {
		return DecisionSummary{}, err
	}
	for _, r := range bySource {
		sum.BySource[r.Source] = r.N
	}
	return sum, nil
}
