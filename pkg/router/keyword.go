package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
)

// KeywordScorer scores text against each role's word and phrase triggers.
type KeywordScorer struct {
	rules         *ruleSet
	ceiling       int
	minScore      int
	maxConfidence float64
}

// NewKeywordScorer compiles the trigger tables in cfg.
func NewKeywordScorer(cfg *config.RoutingConfig) *KeywordScorer {
	return &KeywordScorer{
		rules:         compileRules(cfg),
		ceiling:       cfg.Keyword.ScoreCeiling,
		minScore:      cfg.Keyword.MinScore,
		maxConfidence: cfg.Keyword.MaxConfidence,
	}
}

// Candidates returns every role with a non-zero score, highest first. Equal
// scores keep role declaration order.
func (s *KeywordScorer) Candidates(text string) []Candidate {
	lower := strings.ToLower(text)

	var candidates []Candidate
	for _, role := range agent.AllRoles() {
		var c Candidate
		for _, t := range s.rules.triggers(role) {
			if containsTrigger(lower, t.text) {
				c.Score += t.weight
				c.Triggers = append(c.Triggers, t.text)
			}
		}
		if c.Score == 0 {
			continue
		}
		c.Role = role
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// Best returns the top candidate regardless of the score floor.
func (s *KeywordScorer) Best(text string) (Candidate, bool) {
	candidates := s.Candidates(text)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// Score returns a keyword decision when the best role clears the minimum
// score.
func (s *KeywordScorer) Score(text string) (agent.RoutingDecision, bool) {
	best, ok := s.Best(text)
	if !ok || best.Score < s.minScore {
		return agent.RoutingDecision{}, false
	}
	return decision(best.Role, s.Confidence(best.Score),
		fmt.Sprintf("keyword score %d from %s", best.Score, strings.Join(best.Triggers, ", ")),
		agent.SourceKeyword), true
}

// Confidence maps a score onto [0, maxConfidence]; it never decreases as the
// score grows.
func (s *KeywordScorer) Confidence(score int) float64 {
	if score <= 0 || s.ceiling <= 0 {
		return 0
	}
	c := float64(score) / float64(s.ceiling)
	if c > s.maxConfidence {
		c = s.maxConfidence
	}
	return agent.ClampConfidence(c)
}
