package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/corpus"
	"github.com/zen-systems/switchboard/pkg/embedding"
)

// SnapshotSource supplies the current example corpus.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*corpus.Snapshot, error)
}

// VectorRouter classifies text by majority vote of its nearest labelled
// examples.
type VectorRouter struct {
	embedder embedding.Embedder
	corpus   SnapshotSource
	k        int
	logger   *zap.Logger
}

// NewVectorRouter creates a vector router that consults k neighbours.
func NewVectorRouter(embedder embedding.Embedder, source SnapshotSource, k int, logger *zap.Logger) *VectorRouter {
	if k <= 0 {
		k = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRouter{
		embedder: embedder,
		corpus:   source,
		k:        k,
		logger:   logger.With(zap.String("component", "vector_router")),
	}
}

type vote struct {
	count int
	sum   float64
}

// Classify never returns an error: an empty corpus, a failed corpus read or a
// failed embedding all yield false so later tiers run.
func (v *VectorRouter) Classify(ctx context.Context, text string) (agent.RoutingDecision, bool) {
	snap, err := v.corpus.Snapshot(ctx)
	if err != nil {
		v.logger.Warn("corpus unavailable", zap.Error(err))
		return agent.RoutingDecision{}, false
	}
	if snap.Embedded() == 0 {
		return agent.RoutingDecision{}, false
	}

	query, err := v.embedder.Embed(ctx, text)
	if err != nil {
		v.logger.Warn("embedding failed", zap.String("embedder", v.embedder.Name()), zap.Error(err))
		return agent.RoutingDecision{}, false
	}

	neighbors := snap.Nearest(query, v.k)
	if len(neighbors) == 0 {
		return agent.RoutingDecision{}, false
	}

	votes := make(map[agent.AgentRole]*vote)
	for _, n := range neighbors {
		if !n.Example.Label.Valid() {
			continue
		}
		vt := votes[n.Example.Label]
		if vt == nil {
			vt = &vote{}
			votes[n.Example.Label] = vt
		}
		vt.count++
		vt.sum += n.Similarity
	}

	var winner agent.AgentRole
	var best *vote
	for _, role := range agent.AllRoles() {
		vt := votes[role]
		if vt == nil {
			continue
		}
		if best == nil || vt.count > best.count || (vt.count == best.count && vt.sum > best.sum) {
			winner, best = role, vt
		}
	}
	if best == nil {
		return agent.RoutingDecision{}, false
	}

	mean := best.sum / float64(best.count)
	agreement := float64(best.count) / float64(len(neighbors))
	return decision(winner, mean*agreement,
		fmt.Sprintf("%d/%d nearest examples labelled %s (mean similarity %.2f, corpus v%d)",
			best.count, len(neighbors), winner, mean, snap.Version()),
		agent.SourceVector), true
}
