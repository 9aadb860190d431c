package classification

import (
	"math"
	"strings"
	"testing"

	"triage_worker/core/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// evidenceWords mixes keywords of every category with neutral words.
func evidenceWords() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf(
		"quote", "buy", "new policy",
		"payment", "refund", "invoice",
		"coverage", "renewal", "discount",
		"hello", "please", "call", "me", "[amount]", "[policy_id]",
	)).Map(func(words []string) string {
		return strings.Join(words, " ")
	})
}

// categoryScore generates scores including values the resolver must ignore.
func categoryScore() gopter.Gen {
	return gen.OneGenOf(
		gen.Float64Range(0, 1),
		gen.OneConstOf(math.NaN(), math.Inf(1), math.Inf(-1), -3.0, 7.0),
	)
}

func scoresOf(purchase, billing, info float64) map[domain.Category]float64 {
	return map[domain.Category]float64{
		domain.CategoryPolicyPurchase:             purchase,
		domain.CategoryAccountsBilling:            billing,
		domain.CategoryPolicyInformationMarketing: info,
	}
}

func TestResolveClaimsEvidenceAlwaysWins(t *testing.T) {
	r := newTestResolver(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("a claims keyword decides CLAIMS", prop.ForAll(
		func(text string, purchase, billing, info float64) bool {
			v := r.Resolve(domain.Evidence{
				Text:   text + " the accident happened yesterday",
				Scores: scoresOf(purchase, billing, info),
			})
			c, ok := v.Category()
			return ok && c == domain.CategoryClaims
		},
		evidenceWords(), categoryScore(), categoryScore(), categoryScore(),
	))

	properties.Property("a confident claims score decides CLAIMS", prop.ForAll(
		func(text string, claims, purchase, billing, info float64) bool {
			scores := scoresOf(purchase, billing, info)
			scores[domain.CategoryClaims] = claims
			c, ok := r.Resolve(domain.Evidence{Text: text, Scores: scores}).Category()
			return ok && c == domain.CategoryClaims
		},
		evidenceWords(), gen.Float64Range(r.Config().MinConfidence, 1),
		categoryScore(), categoryScore(), categoryScore(),
	))

	properties.TestingRun(t)
}

func TestResolveVerdictShape(t *testing.T) {
	r := newTestResolver(t)
	properties := gopter.NewProperties(nil)

	properties.Property("every verdict is decided or carries a reason", prop.ForAll(
		func(text string, purchase, billing, info float64) bool {
			v := r.Resolve(domain.Evidence{Text: text, Scores: scoresOf(purchase, billing, info)})
			if len(v.Trace) != len(PriorityOrder()) {
				return false
			}
			if v.IsDecided() {
				return v.Reason() == ""
			}
			return v.NeedsHumanReview() && v.Reason() != ""
		},
		evidenceWords(), categoryScore(), categoryScore(), categoryScore(),
	))

	properties.Property("same evidence gives the same verdict", prop.ForAll(
		func(text string, purchase, billing, info float64) bool {
			evidence := domain.Evidence{Text: text, Scores: scoresOf(purchase, billing, info)}
			return r.Resolve(evidence).String() == r.Resolve(evidence).String()
		},
		evidenceWords(), categoryScore(), categoryScore(), categoryScore(),
	))

	properties.TestingRun(t)
}
