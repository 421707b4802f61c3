package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/zen-systems/switchboard/pkg/agent"
)

// InsertFeedback persists a new, unprocessed feedback entry.
func (s *Store) InsertFeedback(ctx context.Context, f agent.FeedbackEntry) error {
	row := feedbackFromDomain(f)
	row.ProcessedAt = nil
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetFeedback loads one entry by id.
func (s *Store) GetFeedback(ctx context.Context, id string) (agent.FeedbackEntry, error) {
	var row feedbackRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return agent.FeedbackEntry{}, ErrNotFound
		}
		return agent.FeedbackEntry{}, err
	}
	return row.toDomain(), nil
}

// PendingFeedback lists unprocessed entries of the given types, oldest first.
func (s *Store) PendingFeedback(ctx context.Context, types []agent.FeedbackType, limit int) ([]agent.FeedbackEntry, error) {
	var rows []feedbackRow
	q := s.db.WithContext(ctx).
		Where("processed_at IS NULL AND feedback_type IN ?", types).
		Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]agent.FeedbackEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// FeedbackSummary aggregates feedback since a point in time.
type FeedbackSummary struct {
	ByType  map[agent.FeedbackType]int
	Pending int
}

// SummarizeFeedback counts entries per type and pending promotions.
func (s *Store) SummarizeFeedback(ctx context.Context, since time.Time) (FeedbackSummary, error) {
	db := s.db.WithContext(ctx)
	var rows []struct {
		FeedbackType agent.FeedbackType
		N            int
	}
	if err := db.Model(&feedbackRow{}).
		Select("feedback_type, count(*) as n").
		Where("created_at >= ?", since.UTC()).
		Group("feedback_type").
		Scan(&rows).Error; err != nil {
		return FeedbackSummary{}, err
	}

	sum := FeedbackSummary{ByType: make(map[agent.FeedbackType]int, len(rows))}
	for _, r := range rows {
		sum.ByType[r.FeedbackType] = r.N
	}

	var pending int64
	if err := db.Model(&feedbackRow{}).
		Where("processed_at IS NULL AND feedback_type IN ?", []agent.FeedbackType{agent.FeedbackIncorrect, agent.FeedbackImproved}).
		Count(&pending).Error; err != nil {
		return FeedbackSummary{}, err
	}
	sum.Pending = int(pending)
	return sum, nil
}
