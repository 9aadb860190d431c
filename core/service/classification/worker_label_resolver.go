// Package classification implements the label resolution policy for
// insurance emails.
//
// Rules are evaluated in a fixed order and the first satisfied rule wins:
//
//	CLAIMS > POLICY_PURCHASE > ACCOUNTS_BILLING > POLICY_INFORMATION_MARKETING
//
// CLAIMS overrides every other signal. When nothing matches, or the winner
// is not clearly ahead of a later contender, the verdict is NEEDS_REVIEW.
//
// The resolver never guesses: an ambiguous email goes to human review with a
// reason naming the rules in contention.
package classification

import (
	"errors"
	"fmt"
	"strings"

	"triage_worker/core/domain"
)

// =============================================================================
// Resolver Configuration
// =============================================================================

// ResolverConfig holds the thresholds of the label resolver.
type ResolverConfig struct {
	// MinConfidence: a rule matches when its confidence reaches this value.
	MinConfidence float64 // Default: 0.50 (one keyword hit)

	// AmbiguityMargin: the winning rule must lead every later matching rule
	// by at least this much, unless it overrides (CLAIMS).
	AmbiguityMargin float64 // Default: 0.25 (one extra keyword hit)
}

// DefaultResolverConfig returns the default thresholds.
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		MinConfidence:   0.50,
		AmbiguityMargin: 0.25,
	}
}

// Validate checks the thresholds are within [0,1].
func (c *ResolverConfig) Validate() error {
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in (0,1], got %v", c.MinConfidence)
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin > 1 {
		return fmt.Errorf("ambiguity margin must be in [0,1], got %v", c.AmbiguityMargin)
	}
	return nil
}

// =============================================================================
// Label Resolver
// =============================================================================

// LabelResolver turns evidence into exactly one verdict. It holds only
// immutable compiled rules and is safe for concurrent use.
type LabelResolver struct {
	config *ResolverConfig
	rules  []*PriorityRule
}

// NewLabelResolver compiles catalog into the fixed priority order.
func NewLabelResolver(catalog *RuleCatalog, config *ResolverConfig) (*LabelResolver, error) {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		return nil, errors.New("rule catalogue is required")
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	r := &LabelResolver{config: config}
	for _, category := range priorityOrder {
		r.rules = append(r.rules, newPriorityRule(category, catalog.ruleFor(category)))
	}
	return r, nil
}

// NewDefaultLabelResolver builds a resolver from the embedded catalogue.
func NewDefaultLabelResolver() (*LabelResolver, error) {
	catalog, err := DefaultRuleCatalog()
	if err != nil {
		return nil, err
	}
	return NewLabelResolver(catalog, nil)
}

// Config returns the resolver thresholds.
func (r *LabelResolver) Config() ResolverConfig {
	return *r.config
}

// Resolve evaluates every rule in priority order and returns one verdict.
func (r *LabelResolver) Resolve(evidence domain.Evidence) domain.LabelVerdict {
	text := strings.ToLower(evidence.Text)

	trace := make([]domain.RuleEvaluation, len(r.rules))
	winner := -1
	for i, rule := range r.rules {
		trace[i] = rule.Evaluate(text, evidence.Scores, r.config.MinConfidence)
		if winner < 0 && trace[i].Matched {
			winner = i
		}
	}

	if winner < 0 {
		return domain.NeedsReview(domain.ReasonNoRuleMatched).WithTrace(trace)
	}

	top := trace[winner]
	if r.rules[winner].Overrides {
		return domain.Decided(top.Category).WithTrace(trace)
	}

	var contenders []domain.RuleEvaluation
	for _, eval := range trace[winner+1:] {
		if eval.Matched && top.Confidence-eval.Confidence < r.config.AmbiguityMargin {
			contenders = append(contenders, eval)
		}
	}
	if len(contenders) > 0 {
		return domain.NeedsReview(r.ambiguityReason(top, contenders)).WithTrace(trace)
	}

	return domain.Decided(top.Category).WithTrace(trace)
}

// ResolveText resolves on raw or canonical email text only.
func (r *LabelResolver) ResolveText(text string) domain.LabelVerdict {
	return r.Resolve(domain.Evidence{Text: text})
}

// ResolveScores resolves on classifier scores only.
func (r *LabelResolver) ResolveScores(scores map[domain.Category]float64) domain.LabelVerdict {
	return r.Resolve(domain.Evidence{Scores: scores})
}

// ambiguityReason renders e.g.
// "ambiguous: POLICY_PURCHASE (0.50) vs ACCOUNTS_BILLING (0.50) within margin 0.25".
func (r *LabelResolver) ambiguityReason(top domain.RuleEvaluation, contenders []domain.RuleEvaluation) string {
	parts := make([]string, 0, len(contenders)+1)
	parts = append(parts, fmt.Sprintf("%s (%.2f)", top.Category, top.Confidence))
	for _, c := range contenders {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", c.Category, c.Confidence))
	}
	return fmt.Sprintf("ambiguous: %s within margin %.2f", strings.Join(parts, " vs "), r.config.AmbiguityMargin)
}
