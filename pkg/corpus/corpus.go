package corpus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Loader reads the current persisted corpus.
type Loader interface {
	LoadCorpus(ctx context.Context) (*Snapshot, error)
}

// Corpus holds the current snapshot. Reads are lock-free.
type Corpus struct {
	current atomic.Pointer[Snapshot]
	loader  Loader
	loadMu  sync.Mutex
	logger  *zap.Logger
}

// New creates a corpus backed by loader. Nothing is loaded until the first
// Snapshot or Reload call.
func New(loader Loader, logger *zap.Logger) *Corpus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corpus{loader: loader, logger: logger.With(zap.String("component", "corpus"))}
}

// Current returns the published snapshot, or nil before the first load.
func (c *Corpus) Current() *Snapshot {
	return c.current.Load()
}

// Snapshot returns the published snapshot, loading it on first use.
func (c *Corpus) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := c.current.Load(); s != nil {
		return s, nil
	}
	return c.Reload(ctx)
}

// Reload reads the persisted corpus and publishes it if it is newer than
// the current snapshot. Concurrent reloads are serialized.
func (c *Corpus) Reload(ctx context.Context) (*Snapshot, error) {
	if c.loader == nil {
		return nil, fmt.Errorf("corpus has no loader")
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	s, err := c.loader.LoadCorpus(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	c.Publish(s)
	return c.current.Load(), nil
}

// Publish swaps in s unless a snapshot with the same or a newer version is
// already current. It reports whether s became current.
func (c *Corpus) Publish(s *Snapshot) bool {
	if s == nil {
		return false
	}
	for {
		old := c.current.Load()
		if old != nil && old.Version() >= s.Version() {
			return false
		}
		if c.current.CompareAndSwap(old, s) {
			c.logger.Info("published corpus snapshot",
				zap.Int64("version", s.Version()),
				zap.Int("examples", s.Len()),
				zap.Int("embedded", s.Embedded()))
			return true
		}
	}
}
