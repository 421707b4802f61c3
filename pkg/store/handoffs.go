package store

import (
	"context"

	"github.com/zen-systems/switchboard/pkg/agent"
)

// AppendHandoff persists an executed handoff. Records are never updated.
func (s *Store) AppendHandoff(ctx context.Context, rec agent.HandoffRecord) error {
	row, err := handoffFromDomain(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListHandoffs returns a user's handoffs, newest first, optionally limited
// to one thread.
func (s *Store) ListHandoffs(ctx context.Context, userID, threadID string, limit int) ([]agent.HandoffRecord, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if threadID != "" {
		q = q.Where("thread_id = ?", threadID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []handoffRow
	if err := q.Order("created_at DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]agent.HandoffRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
