package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/switchboard/pkg/agent"
)

// RoutingConfig holds the routing policy: tier thresholds, keyword weights,
// per-role trigger tables and the classifier/vector settings.
type RoutingConfig struct {
	Roles        map[string]RoleProfile `yaml:"roles"`
	Thresholds   Thresholds             `yaml:"thresholds"`
	Keyword      KeywordConfig          `yaml:"keyword"`
	Vector       VectorConfig           `yaml:"vector"`
	Classifier   ClassifierConfig       `yaml:"classifier"`
	SeedExamples []SeedExample          `yaml:"seed_examples,omitempty"`
}

// RoleProfile defines how a role is addressed and recognised.
type RoleProfile struct {
	DisplayNames []string `yaml:"display_names,omitempty"`
	Keywords     []string `yaml:"keywords,omitempty"`
	Phrases      []string `yaml:"phrases,omitempty"`
}

// Thresholds are product-tuned policy values.
type Thresholds struct {
	Explicit           float64 `yaml:"explicit,omitempty"`
	Keyword            float64 `yaml:"keyword,omitempty"`
	Vector             float64 `yaml:"vector,omitempty"`
	Handoff            float64 `yaml:"handoff,omitempty"`
	FallbackConfidence float64 `yaml:"fallback_confidence,omitempty"`
}

// KeywordConfig weights keyword scoring.
type KeywordConfig struct {
	WordWeight    int     `yaml:"word_weight,omitempty"`
	PhraseWeight  int     `yaml:"phrase_weight,omitempty"`
	ScoreCeiling  int     `yaml:"score_ceiling,omitempty"`
	MinScore      int     `yaml:"min_score,omitempty"`
	MaxConfidence float64 `yaml:"max_confidence,omitempty"`
}

// VectorConfig configures nearest-neighbour routing.
type VectorConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	K       int   `yaml:"k,omitempty"`
}

// ClassifierConfig configures the external classifier oracle.
type ClassifierConfig struct {
	Enabled            *bool         `yaml:"enabled,omitempty"`
	Adapter            string        `yaml:"adapter,omitempty"`
	Model              string        `yaml:"model,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	MaxRetries         int           `yaml:"max_retries,omitempty"`
	RetryBackoff       time.Duration `yaml:"retry_backoff,omitempty"`
	FallbackConfidence float64       `yaml:"fallback_confidence,omitempty"`
	AgreementBonus     float64       `yaml:"agreement_bonus,omitempty"`
	MaxBoosted         float64       `yaml:"max_boosted,omitempty"`
	CacheTTL           time.Duration `yaml:"cache_ttl,omitempty"`
	RequestsPerSecond  float64       `yaml:"requests_per_second,omitempty"`
	Burst              int           `yaml:"burst,omitempty"`
}

// SeedExample is a labelled utterance imported into the example corpus.
type SeedExample struct {
	Text  string `yaml:"text"`
	Agent string `yaml:"agent"`
}

// ClassifierEnabled reports whether the classifier tier should run.
func (c *RoutingConfig) ClassifierEnabled() bool {
	return c.Classifier.Enabled != nil && *c.Classifier.Enabled
}

// VectorEnabled reports whether the vector tier should run.
func (c *RoutingConfig) VectorEnabled() bool {
	return c.Vector.Enabled != nil && *c.Vector.Enabled
}

// Profile returns the profile for a role, or an empty profile.
func (c *RoutingConfig) Profile(role agent.AgentRole) RoleProfile {
	if c == nil || c.Roles == nil {
		return RoleProfile{}
	}
	return c.Roles[role.String()]
}

// Validate rejects unknown roles and threshold combinations that would let a
// lower tier outrank an explicit mention.
func (c *RoutingConfig) Validate() error {
	var errs []error
	for name := range c.Roles {
		if _, err := agent.ParseAgentRole(name); err != nil {
			errs = append(errs, fmt.Errorf("roles: %w", err))
		}
	}
	for i, ex := range c.SeedExamples {
		if _, err := agent.ParseAgentRole(ex.Agent); err != nil {
			errs = append(errs, fmt.Errorf("seed_examples[%d]: %w", i, err))
		}
	}
	t := c.Thresholds
	if t.Explicit < 0.99 || t.Explicit > 1 {
		errs = append(errs, fmt.Errorf("thresholds.explicit must be in [0.99, 1], got %.2f", t.Explicit))
	}
	if c.Keyword.MaxConfidence >= t.Explicit {
		errs = append(errs, fmt.Errorf("keyword.max_confidence %.2f must stay below thresholds.explicit %.2f", c.Keyword.MaxConfidence, t.Explicit))
	}
	if c.Keyword.PhraseWeight <= c.Keyword.WordWeight {
		errs = append(errs, fmt.Errorf("keyword.phrase_weight must exceed keyword.word_weight"))
	}
	if c.Classifier.MaxBoosted >= 1 {
		errs = append(errs, fmt.Errorf("classifier.max_boosted must stay below 1.0, got %.2f", c.Classifier.MaxBoosted))
	}
	if c.Classifier.MaxRetries > 1 {
		errs = append(errs, fmt.Errorf("classifier.max_retries may be at most 1, got %d", c.Classifier.MaxRetries))
	}
	for name, v := range map[string]float64{
		"thresholds.keyword":             t.Keyword,
		"thresholds.vector":              t.Vector,
		"thresholds.handoff":             t.Handoff,
		"thresholds.fallback_confidence": t.FallbackConfidence,
		"classifier.fallback_confidence": c.Classifier.FallbackConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %.2f", name, v))
		}
	}
	return errors.Join(errs...)
}

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Keys absent from the file keep these values.
	cfg := RoutingConfig{Classifier: ClassifierConfig{MaxRetries: 1}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultRoutingConfig returns the default routing configuration.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		Classifier: ClassifierConfig{MaxRetries: 1},
		Roles: map[string]RoleProfile{
			"orchestrator": {
				DisplayNames: []string{"orchestrator", "coordinator", "assistant"},
			},
			"coder": {
				DisplayNames: []string{"coder", "developer", "dev", "engineer"},
				Keywords:     []string{"code", "bug", "debug", "refactor", "compile", "deploy", "function", "repo", "test", "golang", "python", "api"},
				Phrases:      []string{"pull request", "stack trace", "unit test", "code review", "merge conflict", "build failing"},
			},
			"finance": {
				DisplayNames: []string{"finance", "accountant", "finance agent", "money manager"},
				Keywords:     []string{"budget", "spending", "invoice", "tax", "taxes", "bank", "expense", "expenses", "salary", "invest", "stocks", "savings"},
				Phrases:      []string{"credit card", "bank account", "monthly budget", "tax return", "net worth", "transfer money"},
			},
			"home": {
				DisplayNames: []string{"home", "home assistant", "butler"},
				Keywords:     []string{"lights", "thermostat", "heating", "vacuum", "groceries", "laundry", "chores", "door", "garage"},
				Phrases:      []string{"turn on", "turn off", "smart plug", "grocery list", "living room", "front door"},
			},
			"health": {
				DisplayNames: []string{"health", "coach", "doctor", "health coach"},
				Keywords:     []string{"workout", "sleep", "calories", "diet", "medication", "symptoms", "run", "steps", "weight"},
				Phrases:      []string{"heart rate", "blood pressure", "meal plan", "workout plan", "sleep schedule"},
			},
			"travel": {
				DisplayNames: []string{"travel", "travel agent", "planner"},
				Keywords:     []string{"flight", "flights", "hotel", "itinerary", "visa", "trip", "airport", "booking"},
				Phrases:      []string{"book a flight", "boarding pass", "car rental", "travel plans", "layover"},
			},
			"research": {
				DisplayNames: []string{"research", "researcher", "analyst"},
				Keywords:     []string{"research", "paper", "papers", "sources", "summarize", "compare", "study", "citation"},
				Phrases:      []string{"literature review", "find sources", "pros and cons", "state of the art"},
			},
		},
		SeedExamples: []SeedExample{
			{Text: "can you look at why my tests keep failing in CI", Agent: "coder"},
			{Text: "review the changes in my branch before I merge", Agent: "coder"},
			{Text: "how much did I spend on restaurants last month", Agent: "finance"},
			{Text: "am I on track with my savings goal", Agent: "finance"},
			{Text: "dim the bedroom lights to twenty percent", Agent: "home"},
			{Text: "add milk and eggs to the shopping list", Agent: "home"},
			{Text: "how did I sleep this week", Agent: "health"},
			{Text: "plan a thirty minute workout for today", Agent: "health"},
			{Text: "find me a cheap flight to Lisbon in May", Agent: "travel"},
			{Text: "what documents do I need to enter Japan", Agent: "travel"},
			{Text: "summarize the latest papers on retrieval augmented generation", Agent: "research"},
			{Text: "what are the tradeoffs between postgres and sqlite", Agent: "research"},
			{Text: "thanks, that's all for now", Agent: "orchestrator"},
			{Text: "what can you help me with", Agent: "orchestrator"},
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Roles == nil {
		cfg.Roles = make(map[string]RoleProfile)
	}
	if cfg.Thresholds.Explicit == 0 {
		cfg.Thresholds.Explicit = 0.99
	}
	if cfg.Thresholds.Keyword == 0 {
		cfg.Thresholds.Keyword = 0.75
	}
	if cfg.Thresholds.Vector == 0 {
		cfg.Thresholds.Vector = 0.80
	}
	if cfg.Thresholds.Handoff == 0 {
		cfg.Thresholds.Handoff = 0.7
	}
	if cfg.Thresholds.FallbackConfidence == 0 {
		cfg.Thresholds.FallbackConfidence = 0.3
	}
	if cfg.Keyword.WordWeight == 0 {
		cfg.Keyword.WordWeight = 1
	}
	if cfg.Keyword.PhraseWeight == 0 {
		cfg.Keyword.PhraseWeight = 3
	}
	if cfg.Keyword.ScoreCeiling == 0 {
		cfg.Keyword.ScoreCeiling = 4
	}
	if cfg.Keyword.MinScore == 0 {
		cfg.Keyword.MinScore = 2
	}
	if cfg.Keyword.MaxConfidence == 0 {
		cfg.Keyword.MaxConfidence = 0.95
	}
	if cfg.Vector.Enabled == nil {
		enabled := true
		cfg.Vector.Enabled = &enabled
	}
	if cfg.Vector.K == 0 {
		cfg.Vector.K = 5
	}
	if cfg.Classifier.Enabled == nil {
		enabled := true
		cfg.Classifier.Enabled = &enabled
	}
	if cfg.Classifier.Adapter == "" {
		cfg.Classifier.Adapter = "anthropic"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 10 * time.Second
	}
	if cfg.Classifier.RetryBackoff == 0 {
		cfg.Classifier.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Classifier.FallbackConfidence == 0 {
		cfg.Classifier.FallbackConfidence = 0.5
	}
	if cfg.Classifier.AgreementBonus == 0 {
		cfg.Classifier.AgreementBonus = 0.10
	}
	if cfg.Classifier.MaxBoosted == 0 {
		cfg.Classifier.MaxBoosted = 0.98
	}
	if cfg.Classifier.CacheTTL == 0 {
		cfg.Classifier.CacheTTL = 5 * time.Minute
	}
	if cfg.Classifier.RequestsPerSecond == 0 {
		cfg.Classifier.RequestsPerSecond = 5
	}
	if cfg.Classifier.Burst == 0 {
		cfg.Classifier.Burst = 10
	}
}
