// Package feedback turns user corrections into routing examples.
//
// Corrections are stored unprocessed by Submit. ProcessPending embeds them,
// inserts one labelled example per entry and marks the entries processed in
// one versioned commit per batch, then publishes a fresh corpus snapshot.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/corpus"
	"github.com/zen-systems/switchboard/pkg/embedding"
	"github.com/zen-systems/switchboard/pkg/store"
)

const (
	maxCommitAttempts = 3
	defaultBatchSize  = 100
)

var promotable = []agent.FeedbackType{agent.FeedbackIncorrect, agent.FeedbackImproved}

// Observer is notified of feedback activity.
type Observer interface {
	ObserveFeedback(t agent.FeedbackType)
	ObservePromoted(n int)
}

// Loop owns feedback intake and corpus maintenance.
type Loop struct {
	store     *store.Store
	embedder  embedding.Embedder
	corpus    *corpus.Corpus
	lock      Locker
	observer  Observer
	group     singleflight.Group
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLock guards maintenance across processes.
func WithLock(l Locker) Option {
	return func(loop *Loop) {
		loop.lock = l
	}
}

// WithObserver reports activity to a metrics sink.
func WithObserver(o Observer) Option {
	return func(loop *Loop) {
		loop.observer = o
	}
}

// WithBatchSize caps how many entries one commit promotes.
func WithBatchSize(n int) Option {
	return func(loop *Loop) {
		if n > 0 {
			loop.batchSize = n
		}
	}
}

// WithLogger sets the loop's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(loop *Loop) {
		if logger != nil {
			loop.logger = logger
		}
	}
}

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) Option {
	return func(loop *Loop) {
		loop.now = now
	}
}

// NewLoop creates a feedback loop. c may be nil when no in-process router
// needs to see published snapshots.
func NewLoop(st *store.Store, emb embedding.Embedder, c *corpus.Corpus, opts ...Option) *Loop {
	l := &Loop{
		store:     st,
		embedder:  emb,
		corpus:    c,
		batchSize: defaultBatchSize,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "feedback"))
	return l
}

// Submit validates and stores a feedback entry. It returns the entry's id.
func (l *Loop) Submit(ctx context.Context, f agent.FeedbackEntry) (string, error) {
	f.OriginalQuery = strings.TrimSpace(f.OriginalQuery)
	if err := f.Validate(); err != nil {
		return "", err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = l.now().UTC()
	f.ProcessedAt = nil

	if err := l.store.InsertFeedback(ctx, f); err != nil {
		return "", fmt.Errorf("store feedback: %w", err)
	}
	if l.observer != nil {
		l.observer.ObserveFeedback(f.FeedbackType)
	}
	l.logger.Info("feedback submitted",
		zap.String("id", f.ID),
		zap.String("type", string(f.FeedbackType)),
		zap.Stringer("selected", f.SelectedAgent))
	return f.ID, nil
}

// ProcessPending promotes unprocessed incorrect and improved feedback into
// the example corpus and returns how many entries were promoted. The backlog
// is drained in batches, one versioned commit per batch. Entries whose
// embedding fails are skipped for the rest of the run and stay pending for
// the next one. Concurrent calls in this process share one run; a held
// cross-process lock makes the call a no-op.
func (l *Loop) ProcessPending(ctx context.Context) (int, error) {
	return l.exclusive(ctx, "process", func(ctx context.Context) (int, error) {
		n, err := l.drain(ctx, "promote", l.promoteBatch)
		if n > 0 && l.observer != nil {
			l.observer.ObservePromoted(n)
		}
		return n, err
	})
}

// drain runs batch until a batch neither commits anything nor attempts a
// new entry. failed collects IDs whose embedding failed during this run so
// later batches page past them. The snapshot is republished once at the end.
func (l *Loop) drain(ctx context.Context, op string, batch func(context.Context, map[string]bool) (int, error)) (int, error) {
	failed := make(map[string]bool)
	total := 0
	for {
		before := len(failed)
		n, err := l.withRetry(ctx, func(ctx context.Context) (int, error) {
			return batch(ctx, failed)
		})
		total += n
		if err != nil {
			if total > 0 {
				l.refresh(ctx)
			}
			return total, err
		}
		if n == 0 && len(failed) == before {
			break
		}
	}
	if len(failed) > 0 {
		l.logger.Warn("entries could not be embedded and were left for the next run",
			zap.String("op", op), zap.Int("failed", len(failed)))
	}
	if total > 0 {
		l.refresh(ctx)
	}
	return total, nil
}

func (l *Loop) promoteBatch(ctx context.Context, failed map[string]bool) (int, error) {
	version, err := l.store.CorpusVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read corpus version: %w", err)
	}
	pending, err := l.store.PendingFeedback(ctx, promotable, l.batchSize+len(failed))
	if err != nil {
		return 0, fmt.Errorf("list pending feedback: %w", err)
	}

	type promotion struct {
		entry agent.FeedbackEntry
		vec   []float32
	}
	ready := make([]promotion, 0, l.batchSize)
	for _, f := range pending {
		if failed[f.ID] || len(ready) >= l.batchSize {
			continue
		}
		vec, err := l.embedder.Embed(ctx, f.OriginalQuery)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			l.logger.Warn("embedding failed, leaving feedback pending",
				zap.String("id", f.ID), zap.Error(err))
			failed[f.ID] = true
			continue
		}
		ready = append(ready, promotion{entry: f, vec: vec})
	}
	if len(ready) == 0 {
		return 0, nil
	}

	newVersion, err := l.store.CommitCorpus(ctx, version, func(tx *store.CorpusTx) error {
		ids := make([]string, 0, len(ready))
		for _, p := range ready {
			ex := agent.RoutingExample{
				ID:        uuid.NewString(),
				Text:      p.entry.OriginalQuery,
				Embedding: p.vec,
				Label:     *p.entry.CorrectAgent,
			}
			if err := tx.InsertExample(ex, store.OriginFeedback, p.entry.ID); err != nil {
				return err
			}
			ids = append(ids, p.entry.ID)
		}
		return tx.MarkFeedbackProcessed(ids)
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("promoted feedback into corpus",
		zap.Int("promoted", len(ready)),
		zap.Int64("version", newVersion))
	return len(ready), nil
}

// SeedExampleEmbeddings back-fills embeddings for examples that have none
// and returns how many were filled.
func (l *Loop) SeedExampleEmbeddings(ctx context.Context) (int, error) {
	return l.exclusive(ctx, "seed", func(ctx context.Context) (int, error) {
		return l.drain(ctx, "seed", l.seedBatch)
	})
}

func (l *Loop) seedBatch(ctx context.Context, failed map[string]bool) (int, error) {
	version, err := l.store.CorpusVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read corpus version: %w", err)
	}
	missing, err := l.store.ExamplesMissingEmbedding(ctx, l.batchSize+len(failed))
	if err != nil {
		return 0, fmt.Errorf("list examples missing embeddings: %w", err)
	}

	vecs := make(map[string][]float32)
	for _, ex := range missing {
		if failed[ex.ID] || len(vecs) >= l.batchSize {
			continue
		}
		vec, err := l.embedder.Embed(ctx, ex.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			l.logger.Warn("embedding failed", zap.String("example", ex.ID), zap.Error(err))
			failed[ex.ID] = true
			continue
		}
		vecs[ex.ID] = vec
	}
	if len(vecs) == 0 {
		return 0, nil
	}

	newVersion, err := l.store.CommitCorpus(ctx, version, func(tx *store.CorpusTx) error {
		for id, vec := range vecs {
			if err := tx.SetEmbedding(id, vec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("seeded example embeddings",
		zap.Int("count", len(vecs)),
		zap.Int64("version", newVersion))
	return len(vecs), nil
}

// ImportSeedExamples stores configured examples whose text is not already
// in the corpus. They are inserted without embeddings; run
// SeedExampleEmbeddings afterwards.
func (l *Loop) ImportSeedExamples(ctx context.Context, seeds []config.SeedExample) (int, error) {
	examples := make([]agent.RoutingExample, 0, len(seeds))
	for i, s := range seeds {
		role, err := agent.ParseAgentRole(s.Agent)
		if err != nil {
			return 0, fmt.Errorf("seed example %d: %w", i, err)
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			return 0, &agent.ValidationError{Field: fmt.Sprintf("seed_examples[%d].text", i), Message: "must not be empty"}
		}
		examples = append(examples, agent.RoutingExample{Text: text, Label: role})
	}

	return l.withRetry(ctx, func(ctx context.Context) (int, error) {
		version, err := l.store.CorpusVersion(ctx)
		if err != nil {
			return 0, fmt.Errorf("read corpus version: %w", err)
		}
		existing, err := l.store.ExampleTexts(ctx)
		if err != nil {
			return 0, fmt.Errorf("list example texts: %w", err)
		}
		fresh := make([]agent.RoutingExample, 0, len(examples))
		for _, ex := range examples {
			if existing[ex.Text] {
				continue
			}
			existing[ex.Text] = true
			ex.ID = uuid.NewString()
			fresh = append(fresh, ex)
		}
		if len(fresh) == 0 {
			return 0, nil
		}
		_, err = l.store.CommitCorpus(ctx, version, func(tx *store.CorpusTx) error {
			for _, ex := range fresh {
				if err := tx.InsertExample(ex, store.OriginSeed, ""); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		l.logger.Info("imported seed examples", zap.Int("count", len(fresh)))
		l.refresh(ctx)
		return len(fresh), nil
	})
}

// withRetry reruns fn from a fresh read when its commit loses a version race.
func (l *Loop) withRetry(ctx context.Context, fn func(context.Context) (int, error)) (int, error) {
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		var n int
		n, err = fn(ctx)
		if !errors.Is(err, store.ErrVersionConflict) {
			return n, err
		}
		l.logger.Warn("corpus version conflict, retrying", zap.Int("attempt", attempt))
	}
	return 0, fmt.Errorf("corpus commit failed after %d attempts: %w", maxCommitAttempts, err)
}

// exclusive runs fn once per key in this process and, when a lock is
// configured, only while holding it.
func (l *Loop) exclusive(ctx context.Context, key string, fn func(context.Context) (int, error)) (int, error) {
	v, err, shared := l.group.Do(key, func() (any, error) {
		if l.lock != nil {
			unlock, err := l.lock.TryLock(ctx, key)
			if errors.Is(err, ErrLocked) {
				l.logger.Info("maintenance already running elsewhere", zap.String("task", key))
				return 0, nil
			}
			if err != nil {
				return 0, fmt.Errorf("acquire %s lock: %w", key, err)
			}
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					l.logger.Warn("failed to release lock", zap.String("task", key), zap.Error(err))
				}
			}()
		}
		return fn(ctx)
	})
	if shared {
		l.logger.Debug("joined running maintenance", zap.String("task", key))
	}
	n, _ := v.(int)
	return n, err
}

func (l *Loop) refresh(ctx context.Context) {
	if l.corpus == nil {
		return
	}
	if _, err := l.corpus.Reload(ctx); err != nil {
		l.logger.Warn("failed to publish corpus snapshot", zap.Error(err))
	}
}
