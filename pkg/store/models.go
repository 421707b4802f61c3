package store

import (
	"encoding/json"
	"time"

	"github.com/zen-systems/switchboard/pkg/agent"
)

const (
	OriginSeed     = "seed"
	OriginFeedback = "feedback"
)

type exampleRow struct {
	ID         string          `gorm:"primaryKey;size:36"`
	Text       string          `gorm:"not null"`
	Embedding  Vector
	Label      agent.AgentRole `gorm:"type:varchar(32);not null;index"`
	Origin     string          `gorm:"size:16;not null"`
	FeedbackID *string         `gorm:"size:36;uniqueIndex"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (exampleRow) TableName() string { return "routing_examples" }

func (r exampleRow) toDomain() agent.RoutingExample {
	return agent.RoutingExample{
		ID:        r.ID,
		Text:      r.Text,
		Embedding: []float32(r.Embedding),
		Label:     r.Label,
		CreatedAt: r.CreatedAt,
	}
}

type feedbackRow struct {
	ID                string             `gorm:"primaryKey;size:36"`
	OriginalQuery     string             `gorm:"not null"`
	SelectedAgent     agent.AgentRole    `gorm:"type:varchar(32);not null"`
	RoutingConfidence float64            `gorm:"not null"`
	RoutingSource     agent.Source       `gorm:"size:16;not null"`
	FeedbackType      agent.FeedbackType `gorm:"size:16;not null;index"`
	CorrectAgent      agent.AgentRole    `gorm:"type:varchar(32)"`
	UserComment       string
	CreatedAt         time.Time  `gorm:"not null;index"`
	ProcessedAt       *time.Time `gorm:"index"`
}

func (feedbackRow) TableName() string { return "feedback_entries" }

func feedbackFromDomain(f agent.FeedbackEntry) feedbackRow {
	row := feedbackRow{
		ID:                f.ID,
		OriginalQuery:     f.OriginalQuery,
		SelectedAgent:     f.SelectedAgent,
		RoutingConfidence: f.RoutingConfidence,
		RoutingSource:     f.RoutingSource,
		FeedbackType:      f.FeedbackType,
		UserComment:       f.UserComment,
		CreatedAt:         f.CreatedAt,
		ProcessedAt:       f.ProcessedAt,
	}
	if f.CorrectAgent != nil {
		row.CorrectAgent = *f.CorrectAgent
	}
	return row
}

func (r feedbackRow) toDomain() agent.FeedbackEntry {
	f := agent.FeedbackEntry{
		ID:                r.ID,
		OriginalQuery:     r.OriginalQuery,
		SelectedAgent:     r.SelectedAgent,
		RoutingConfidence: r.RoutingConfidence,
		RoutingSource:     r.RoutingSource,
		FeedbackType:      r.FeedbackType,
		UserComment:       r.UserComment,
		CreatedAt:         r.CreatedAt,
		ProcessedAt:       r.ProcessedAt,
	}
	if r.CorrectAgent.Valid() {
		correct := r.CorrectAgent
		f.CorrectAgent = &correct
	}
	return f
}

type decisionRow struct {
	ID           string          `gorm:"primaryKey;size:36"`
	Query        string          `gorm:"not null"`
	CurrentAgent agent.AgentRole `gorm:"type:varchar(32)"`
	TargetAgent  agent.AgentRole `gorm:"type:varchar(32);not null;index"`
	Confidence   float64         `gorm:"not null"`
	Rationale    string
	Source       agent.Source `gorm:"size:16;not null;index"`
	CreatedAt    time.Time    `gorm:"not null;index"`
}

func (decisionRow) TableName() string { return "routing_decisions" }

type handoffRow struct {
	ID          string          `gorm:"primaryKey;size:36"`
	FromAgent   agent.AgentRole `gorm:"type:varchar(32);not null"`
	TargetAgent agent.AgentRole `gorm:"type:varchar(32);not null"`
	Reason      string
	Context     string `gorm:"type:text"`
	Message     string
	UserID      string    `gorm:"size:128;not null;index"`
	ThreadID    string    `gorm:"size:128;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (handoffRow) TableName() string { return "handoff_records" }

func handoffFromDomain(rec agent.HandoffRecord) (handoffRow, error) {
	var ctxJSON string
	if len(rec.Handoff.Context) > 0 {
		data, err := json.Marshal(rec.Handoff.Context)
		if err != nil {
			return handoffRow{}, err
		}
		ctxJSON = string(data)
	}
	return handoffRow{
		ID:          rec.ID,
		FromAgent:   rec.Handoff.From,
		TargetAgent: rec.Handoff.TargetAgent,
		Reason:      rec.Handoff.Reason,
		Context:     ctxJSON,
		Message:     rec.Message,
		UserID:      rec.UserID,
		ThreadID:    rec.ThreadID,
		CreatedAt:   rec.Timestamp,
	}, nil
}

func (r handoffRow) toDomain() (agent.HandoffRecord, error) {
	rec := agent.HandoffRecord{
		ID: r.ID,
		Handoff: agent.Handoff{
			From:        r.FromAgent,
			TargetAgent: r.TargetAgent,
			Reason:      r.Reason,
		},
		Message:   r.Message,
		UserID:    r.UserID,
		ThreadID:  r.ThreadID,
		Timestamp: r.CreatedAt,
	}
	if r.Context != "" {
		if err := json.Unmarshal([]byte(r.Context), &rec.Handoff.Context); err != nil {
			return agent.HandoffRecord{}, err
		}
	}
	return rec, nil
}

// corpusVersionRow is a single row holding the published corpus version.
type corpusVersionRow struct {
	ID        uint  `gorm:"primaryKey"`
	Version   int64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (corpusVersionRow) TableName() string { return "corpus_version" }
