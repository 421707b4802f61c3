package router

import (
	"strings"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
)

type trigger struct {
	text   string
	weight int
}

// ruleSet holds each role's lowercased triggers, indexed by role so lookups
// and tie-breaks follow declaration order.
type ruleSet struct {
	byRole [][]trigger
}

func compileRules(cfg *config.RoutingConfig) *ruleSet {
	rs := &ruleSet{byRole: make([][]trigger, len(agent.AllRoles())+1)}
	for _, role := range agent.AllRoles() {
		profile := cfg.Profile(role)
		seen := make(map[string]bool)
		add := func(raw string, weight int) {
			t := strings.ToLower(strings.TrimSpace(raw))
			if t == "" || seen[t] {
				return
			}
			seen[t] = true
			rs.byRole[role] = append(rs.byRole[role], trigger{text: t, weight: weight})
		}
		for _, p := range profile.Phrases {
			add(p, cfg.Keyword.PhraseWeight)
		}
		for _, w := range profile.Keywords {
			add(w, cfg.Keyword.WordWeight)
		}
	}
	return rs
}

func (rs *ruleSet) triggers(role agent.AgentRole) []trigger {
	if int(role) >= len(rs.byRole) {
		return nil
	}
	return rs.byRole[role]
}

// containsTrigger checks if the prompt contains the trigger phrase.
// It looks for the trigger as a word or phrase boundary match, trying every
// occurrence so "debugging the debug build" still matches "debug".
func containsTrigger(prompt, trigger string) bool {
	if trigger == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(prompt[offset:], trigger)
		if idx == -1 {
			return false
		}
		idx += offset
		endIdx := idx + len(trigger)

		before := idx == 0 || !isWordChar(prompt[idx-1])
		after := endIdx >= len(prompt) || !isWordChar(prompt[endIdx])
		if before && after {
			return true
		}
		offset = idx + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
