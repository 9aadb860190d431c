package classification

import (
	"math"
	"regexp"
	"strings"

	"triage_worker/core/domain"
)

// =============================================================================
// Priority Rules
// =============================================================================

// priorityOrder is the fixed evaluation order. The first rule that reaches
// its threshold wins. Claims must never be missed, so CLAIMS comes first and
// overrides every other signal.
var priorityOrder = [...]domain.Category{
	domain.CategoryClaims,
	domain.CategoryPolicyPurchase,
	domain.CategoryAccountsBilling,
	domain.CategoryPolicyInformationMarketing,
}

// PriorityOrder returns the rule evaluation order.
func PriorityOrder() []domain.Category {
	out := make([]domain.Category, len(priorityOrder))
	copy(out, priorityOrder[:])
	return out
}

// Signal prefixes recorded in rule evaluations.
const (
	SignalKeyword    = "keyword"
	SignalPattern    = "pattern"
	SignalClassifier = "classifier"
)

// PriorityRule is a predicate over evidence and the category it asserts.
type PriorityRule struct {
	Category domain.Category

	// Overrides marks a rule that wins without an ambiguity check.
	Overrides bool

	matchers []signalMatcher
}

type signalMatcher struct {
	signal  string
	pattern *regexp.Regexp
}

// newPriorityRule compiles the catalogue evidence for category.
func newPriorityRule(category domain.Category, def CatalogRule) *PriorityRule {
	r := &PriorityRule{
		Category:  category,
		Overrides: category == domain.CategoryClaims,
	}

	for _, kw := range def.Keywords {
		r.matchers = append(r.matchers, signalMatcher{
			signal:  SignalKeyword + ":" + kw,
			pattern: compileKeyword(kw),
		})
	}
	for _, p := range def.Patterns {
		r.matchers = append(r.matchers, signalMatcher{
			signal:  SignalPattern + ":" + p.Name,
			pattern: regexp.MustCompile(p.Regex),
		})
	}
	return r
}

// compileKeyword builds a word-bounded matcher. "stem*" matches any word
// starting with stem; internal spaces match any whitespace run.
func compileKeyword(kw string) *regexp.Regexp {
	kw = strings.ToLower(strings.TrimSpace(kw))
	prefix := strings.HasSuffix(kw, "*")
	kw = strings.TrimSuffix(kw, "*")

	words := strings.Fields(kw)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	expr := `\b` + strings.Join(words, `\s+`)
	if prefix {
		expr += `\w*`
	}
	return regexp.MustCompile(expr + `\b`)
}

// Evaluate scores the rule against lower-cased text and classifier scores.
// Confidence is the larger of the keyword confidence and the classifier
// score for this category.
func (r *PriorityRule) Evaluate(text string, scores map[domain.Category]float64, minConfidence float64) domain.RuleEvaluation {
	eval := domain.RuleEvaluation{Category: r.Category}

	if text != "" {
		for _, m := range r.matchers {
			if m.pattern.MatchString(text) {
				eval.Signals = append(eval.Signals, m.signal)
			}
		}
		eval.Confidence = keywordConfidence(len(eval.Signals))
	}

	if score, ok := sanitizeScore(scores, r.Category); ok {
		eval.Signals = append(eval.Signals, SignalClassifier)
		if score > eval.Confidence {
			eval.Confidence = score
		}
	}

	eval.Matched = eval.Confidence > 0 && eval.Confidence >= minConfidence
	return eval
}

// keywordConfidence maps distinct signal hits to a confidence:
// 1 hit 0.50, 2 hits 0.75, 3 hits 0.875, ...
func keywordConfidence(hits int) float64 {
	if hits <= 0 {
		return 0
	}
	return 1 - math.Pow(0.5, float64(hits))
}

// sanitizeScore returns a usable classifier score clamped to [0,1].
// Missing, NaN and infinite values carry no signal.
func sanitizeScore(scores map[domain.Category]float64, c domain.Category) (float64, bool) {
	if scores == nil {
		return 0, false
	}
	s, ok := scores[c]
	if !ok || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return math.Min(1, math.Max(0, s)), true
}
