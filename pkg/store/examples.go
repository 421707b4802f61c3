package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/corpus"
)

// CorpusVersion returns the published corpus version.
func (s *Store) CorpusVersion(ctx context.Context) (int64, error) {
	return corpusVersion(s.db.WithContext(ctx))
}

func corpusVersion(db *gorm.DB) (int64, error) {
	var row corpusVersionRow
	if err := db.First(&row, corpusVersionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return row.Version, nil
}

// LoadCorpus reads the version and every example in one transaction so the
// snapshot matches the version it is labelled with.
func (s *Store) LoadCorpus(ctx context.Context) (*corpus.Snapshot, error) {
	var snap *corpus.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := corpusVersion(tx)
		if err != nil {
			return err
		}
		var rows []exampleRow
		if err := tx.Order("created_at, id").Find(&rows).Error; err != nil {
			return err
		}
		examples := make([]agent.RoutingExample, len(rows))
		for i, r := range rows {
			examples[i] = r.toDomain()
		}
		snap = corpus.NewSnapshot(version, examples)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ExamplesMissingEmbedding lists up to limit examples with no embedding.
func (s *Store) ExamplesMissingEmbedding(ctx context.Context, limit int) ([]agent.RoutingExample, error) {
	var rows []exampleRow
	q := s.db.WithContext(ctx).Where("embedding IS NULL").Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]agent.RoutingExample, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ExampleTexts returns the set of example texts already stored.
func (s *Store) ExampleTexts(ctx context.Context) (map[string]bool, error) {
	var texts []string
	if err := s.db.WithContext(ctx).Model(&exampleRow{}).Pluck("text", &texts).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(texts))
	for _, t := range texts {
		out[t] = true
	}
	return out, nil
}

// CountExamples returns the total number of examples per label.
func (s *Store) CountExamples(ctx context.Context) (map[agent.AgentRole]int, error) {
	var rows []struct {
		Label agent.AgentRole
		N     int
	}
	err := s.db.WithContext(ctx).Model(&exampleRow{}).
		Select("label, count(*) as n").Group("label").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[agent.AgentRole]int, len(rows))
	for _, r := range rows {
		out[r.Label] = r.N
	}
	return out, nil
}

// CorpusTx is the write surface available inside CommitCorpus.
type CorpusTx struct {
	tx  *gorm.DB
	now time.Time
}

// InsertExample appends an example. feedbackID links it to the entry it was
// promoted from and may be empty.
func (c *CorpusTx) InsertExample(ex agent.RoutingExample, origin, feedbackID string) error {
	if !ex.Label.Valid() {
		return &agent.ValidationError{Field: "label", Message: "invalid agent role"}
	}
	row := exampleRow{
		ID:        ex.ID,
		Text:      ex.Text,
		Embedding: Vector(ex.Embedding),
		Label:     ex.Label,
		Origin:    origin,
		CreatedAt: ex.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = c.now
	}
	if feedbackID != "" {
		row.FeedbackID = &feedbackID
	}
	return c.tx.Create(&row).Error
}

// SetEmbedding fills in a missing embedding. Examples that already have one
// are left alone and reported as a conflict.
func (c *CorpusTx) SetEmbedding(id string, vec []float32) error {
	res := c.tx.Model(&exampleRow{}).
		Where("id = ? AND embedding IS NULL", id).
		Update("embedding", Vector(vec))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("example %s: %w", id, ErrVersionConflict)
	}
	return nil
}

// MarkFeedbackProcessed stamps unprocessed entries. If any entry was already
// processed the whole commit fails with ErrVersionConflict.
func (c *CorpusTx) MarkFeedbackProcessed(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := c.now
	res := c.tx.Model(&feedbackRow{}).
		Where("id IN ? AND processed_at IS NULL", ids).
		Update("processed_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("feedback already processed: %w", ErrVersionConflict)
	}
	return nil
}

// CommitCorpus runs change in a transaction and advances the corpus version
// from expected to expected+1. If the version moved since it was read,
// nothing is written and ErrVersionConflict is returned.
func (s *Store) CommitCorpus(ctx context.Context, expected int64, change func(*CorpusTx) error) (int64, error) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&corpusVersionRow{}).
			Where("id = ? AND version = ?", corpusVersionID, expected).
			Updates(map[string]any{"version": expected + 1, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return change(&CorpusTx{tx: tx, now: now})
	})
	if err != nil {
		return 0, err
	}
	return expected + 1, nil
}
