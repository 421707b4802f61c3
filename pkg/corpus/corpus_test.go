package corpus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/switchboard/pkg/agent"
)

type staticLoader struct {
	snap  *Snapshot
	err   error
	calls int
}

func (l *staticLoader) LoadCorpus(context.Context) (*Snapshot, error) {
	l.calls++
	return l.snap, l.err
}

func example(id string, label agent.AgentRole, vec ...float32) agent.RoutingExample {
	return agent.RoutingExample{ID: id, Text: id, Label: label, Embedding: vec}
}

func TestSnapshotIsolatedFromCaller(t *testing.T) {
	examples := []agent.RoutingExample{example("a", agent.Coder, 1, 0)}
	s := NewSnapshot(1, examples)
	examples[0].Embedding[0] = 42
	examples[0].Label = agent.Home

	got := s.Examples()
	assert.Equal(t, float32(1), got[0].Embedding[0])
	assert.Equal(t, agent.Coder, got[0].Label)
}

func TestNearestOrdersAndSkips(t *testing.T) {
	s := NewSnapshot(1, []agent.RoutingExample{
		example("far", agent.Home, 0, 1),
		example("near", agent.Coder, 1, 0),
		example("unembedded", agent.Finance),
		example("wrongdim", agent.Travel, 1, 0, 0),
		example("mid", agent.Coder, 1, 1),
	})
	assert.Equal(t, 4, s.Embedded())

	n := s.Nearest([]float32{1, 0}, 2)
	require.Len(t, n, 2)
	assert.Equal(t, "near", n[0].Example.ID)
	assert.Equal(t, "mid", n[1].Example.ID)
	assert.InDelta(t, 1.0, n[0].Similarity, 1e-9)

	assert.Nil(t, s.Nearest(nil, 3))
	assert.Nil(t, (*Snapshot)(nil).Nearest([]float32{1}, 3))
}

func TestCorpusLazyLoadAndPublish(t *testing.T) {
	loader := &staticLoader{snap: NewSnapshot(3, []agent.RoutingExample{example("a", agent.Coder, 1)})}
	c := New(loader, nil)
	assert.Nil(t, c.Current())

	s, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Version())

	_, err = c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)

	assert.False(t, c.Publish(NewSnapshot(2, nil)), "older versions must not replace newer ones")
	assert.True(t, c.Publish(NewSnapshot(4, nil)))
	assert.Equal(t, int64(4), c.Current().Version())
}

func TestCorpusLoadFailure(t *testing.T) {
	c := New(&staticLoader{err: errors.New("db down")}, nil)
	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.Nil(t, c.Current())
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	c := New(nil, nil)
	c.Publish(NewSnapshot(1, []agent.RoutingExample{example("a", agent.Coder, 1)}))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := c.Current()
				if int64(s.Len()) != s.Version() {
					t.Errorf("snapshot version %d has %d examples", s.Version(), s.Len())
					return
				}
			}
		}()
	}
	for v := int64(2); v <= 50; v++ {
		examples := make([]agent.RoutingExample, v)
		for i := range examples {
			examples[i] = example("x", agent.Coder, 1)
		}
		c.Publish(NewSnapshot(v, examples))
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Current().Version())
}
