package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/config"
)

// ExplicitMatcher recognises direct addressing such as "ask the coder",
// "@finance" or "hey planner".
type ExplicitMatcher struct {
	patterns   []rolePattern
	confidence float64
}

type rolePattern struct {
	role agent.AgentRole
	re   *regexp.Regexp
}

// NewExplicitMatcher builds one pattern per role from its name and display
// aliases.
func NewExplicitMatcher(cfg *config.RoutingConfig) *ExplicitMatcher {
	m := &ExplicitMatcher{confidence: cfg.Thresholds.Explicit}
	for _, role := range agent.AllRoles() {
		aliases := []string{role.String()}
		aliases = append(aliases, cfg.Profile(role).DisplayNames...)
		m.patterns = append(m.patterns, rolePattern{role: role, re: mentionPattern(aliases)})
	}
	return m
}

// The polite verbs take an optional article; the looser ones require it so
// that "have research to do" is not read as addressing the researcher.
const mentionPrefix = `(?:\b(?:ask|tell|ping)\s+(?:the\s+|my\s+|our\s+)?` +
	`|\b(?:have|let|get)\s+(?:the|my|our)\s+` +
	`|\bhey\s+(?:the\s+)?` +
	`|(?:^|[^\w@])@)`

func mentionPattern(aliases []string) *regexp.Regexp {
	seen := make(map[string]bool)
	var quoted []string
	for _, a := range aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		quoted = append(quoted, strings.Join(strings.Fields(regexp.QuoteMeta(a)), `\s+`))
	}
	// Longest alias first so "home assistant" wins over "home".
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)` + mentionPrefix + `(` + strings.Join(quoted, "|") + `)\b`)
}

// Match returns an explicit decision for the earliest mention in text. When
// two roles are mentioned at the same position the earlier-declared role wins.
func (m *ExplicitMatcher) Match(text string) (agent.RoutingDecision, bool) {
	bestIdx := -1
	var best agent.AgentRole
	var alias string
	for _, p := range m.patterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if bestIdx == -1 || loc[2] < bestIdx {
			bestIdx = loc[2]
			best = p.role
			alias = text[loc[2]:loc[3]]
		}
	}
	if bestIdx == -1 {
		return agent.RoutingDecision{}, false
	}
	return decision(best, m.confidence, fmt.Sprintf("explicit mention of %q", strings.ToLower(alias)), agent.SourceExplicit), true
}
