package classification

import (
	"math"
	"strings"
	"sync"
	"testing"

	"triage_worker/core/domain"
	"triage_worker/core/service/preprocess"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *LabelResolver {
	t.Helper()
	r, err := NewDefaultLabelResolver()
	require.NoError(t, err)
	return r
}

func requireDecided(t *testing.T, v domain.LabelVerdict, want domain.Category) {
	t.Helper()
	c, ok := v.Category()
	require.True(t, ok, "expected decided verdict, got %s", v)
	assert.Equal(t, want, c)
	assert.Empty(t, v.Reason())
}

func TestPriorityOrderIsFixed(t *testing.T) {
	assert.Equal(t, []domain.Category{
		domain.CategoryClaims,
		domain.CategoryPolicyPurchase,
		domain.CategoryAccountsBilling,
		domain.CategoryPolicyInformationMarketing,
	}, PriorityOrder())
}

// TestResolveText tests keyword-based resolution on email text.
func TestResolveText(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name       string
		text       string
		want       domain.Category
		wantReview bool
	}{
		{name: "accident", text: "I had an accident on the highway yesterday", want: domain.CategoryClaims},
		{name: "hospitalisation", text: "My father was hospitalised last week", want: domain.CategoryClaims},
		{name: "reimbursement", text: "When will I get reimbursed for the treatment?", want: domain.CategoryClaims},
		{name: "water damage", text: "There is water damage in the kitchen", want: domain.CategoryClaims},
		{name: "quote request", text: "Could you send me a quote for car insurance?", want: domain.CategoryPolicyPurchase},
		{name: "enrollment", text: "I would like to enroll my family in a new policy", want: domain.CategoryPolicyPurchase},
		{name: "premium payment", text: "My premium payment failed this month", want: domain.CategoryAccountsBilling},
		{name: "refund", text: "Please process my refund", want: domain.CategoryAccountsBilling},
		{name: "invoice", text: "I need a copy of the invoice", want: domain.CategoryAccountsBilling},
		{name: "coverage question", text: "Is dental included in my coverage?", want: domain.CategoryPolicyInformationMarketing},
		{name: "promotion", text: "Exclusive promotion for loyal customers", want: domain.CategoryPolicyInformationMarketing},
		{name: "renewal without payment", text: "When is my policy renewal?", want: domain.CategoryPolicyInformationMarketing},
		{name: "renewal with payment leans billing", text: "Renewal premium payment reminder", want: domain.CategoryAccountsBilling},
		{name: "no signal", text: "Hello, how are you today?", wantReview: true},
		{name: "empty", text: "", wantReview: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.ResolveText(tt.text)
			if tt.wantReview {
				assert.True(t, v.NeedsHumanReview(), "got %s", v)
				return
			}
			requireDecided(t, v, tt.want)
		})
	}
}

func TestClaimsOverridesEveryOtherRule(t *testing.T) {
	r := newTestResolver(t)

	texts := []string{
		"Claim #AB1234567 payment of $500 pending",
		"Refund for hospital treatment invoice, payment overdue",
		"I want a quote for a new policy after my accident",
		"Does my coverage include the damage? Also exclusive offers please",
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			requireDecided(t, r.ResolveText(text), domain.CategoryClaims)
		})
	}
}

func TestClaimsOverridesOnScores(t *testing.T) {
	r := newTestResolver(t)

	v := r.ResolveScores(map[domain.Category]float64{
		domain.CategoryClaims:          0.55,
		domain.CategoryAccountsBilling: 0.99,
	})
	requireDecided(t, v, domain.CategoryClaims)
}

func TestResolveText_CanonicalClaimsEmail(t *testing.T) {
	r := newTestResolver(t)

	input := preprocess.BuildModelInput(
		domain.Text("Claim #AB1234567 payment of $500 pending"),
		nil, nil, nil,
	)
	v := r.ResolveText(string(input))
	requireDecided(t, v, domain.CategoryClaims)
	assert.Contains(t, v.Trace[0].Signals, "pattern:claim-number")
}

func TestNoSignalRoutesToReview(t *testing.T) {
	r := newTestResolver(t)

	for _, ev := range []domain.Evidence{
		{},
		{Text: "Good morning"},
		{Scores: map[domain.Category]float64{}},
		{Scores: map[domain.Category]float64{domain.CategoryPolicyPurchase: 0.2}},
	} {
		v := r.Resolve(ev)
		require.True(t, v.NeedsHumanReview(), "got %s", v)
		assert.Equal(t, domain.ReasonNoRuleMatched, v.Reason())
		assert.Len(t, v.Trace, 4)
	}
}

func TestAmbiguityRoutesToReview(t *testing.T) {
	r := newTestResolver(t)

	v := r.ResolveText("I want a quote and I have a question about my invoice")
	require.True(t, v.NeedsHumanReview(), "got %s", v)
	assert.Equal(t, "ambiguous: POLICY_PURCHASE (0.50) vs ACCOUNTS_BILLING (0.50) within margin 0.25", v.Reason())
}

func TestAmbiguityOnScores(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name       string
		scores     map[domain.Category]float64
		want       domain.Category
		wantReview string
	}{
		{
			name:   "clear purchase",
			scores: map[domain.Category]float64{domain.CategoryPolicyPurchase: 0.90, domain.CategoryAccountsBilling: 0.30},
			want:   domain.CategoryPolicyPurchase,
		},
		{
			name:   "lower rule below threshold does not contend",
			scores: map[domain.Category]float64{domain.CategoryAccountsBilling: 0.60, domain.CategoryPolicyInformationMarketing: 0.45},
			want:   domain.CategoryAccountsBilling,
		},
		{
			name:       "close scores",
			scores:     map[domain.Category]float64{domain.CategoryPolicyPurchase: 0.60, domain.CategoryAccountsBilling: 0.55},
			wantReview: "ambiguous: POLICY_PURCHASE (0.60) vs ACCOUNTS_BILLING (0.55) within margin 0.25",
		},
		{
			name:       "later rule far stronger than the priority winner",
			scores:     map[domain.Category]float64{domain.CategoryPolicyPurchase: 0.55, domain.CategoryPolicyInformationMarketing: 0.95},
			wantReview: "ambiguous: POLICY_PURCHASE (0.55) vs POLICY_INFORMATION_MARKETING (0.95) within margin 0.25",
		},
		{
			name: "every contender is named",
			scores: map[domain.Category]float64{
				domain.CategoryPolicyPurchase:             0.70,
				domain.CategoryAccountsBilling:            0.65,
				domain.CategoryPolicyInformationMarketing: 0.60,
			},
			wantReview: "ambiguous: POLICY_PURCHASE (0.70) vs ACCOUNTS_BILLING (0.65) vs POLICY_INFORMATION_MARKETING (0.60) within margin 0.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.ResolveScores(tt.scores)
			if tt.wantReview != "" {
				require.True(t, v.NeedsHumanReview(), "got %s", v)
				assert.Equal(t, tt.wantReview, v.Reason())
				return
			}
			requireDecided(t, v, tt.want)
		})
	}
}

func TestMalformedScoresCarryNoSignal(t *testing.T) {
	r := newTestResolver(t)

	v := r.ResolveScores(map[domain.Category]float64{
		domain.CategoryClaims:         math.NaN(),
		domain.CategoryPolicyPurchase: math.Inf(1),
		domain.Category(42):           1,
	})
	assert.True(t, v.NeedsHumanReview())
	assert.Equal(t, domain.ReasonNoRuleMatched, v.Reason())

	v = r.ResolveScores(map[domain.Category]float64{domain.CategoryAccountsBilling: 7})
	requireDecided(t, v, domain.CategoryAccountsBilling)
	assert.Equal(t, 1.0, v.Trace[2].Confidence)
}

func TestTextAndScoresCombine(t *testing.T) {
	r := newTestResolver(t)

	// One keyword hit for purchase and billing would be ambiguous; a strong
	// classifier score for purchase breaks the tie.
	v := r.Resolve(domain.Evidence{
		Text:   "quote and invoice",
		Scores: map[domain.Category]float64{domain.CategoryPolicyPurchase: 0.95},
	})
	requireDecided(t, v, domain.CategoryPolicyPurchase)
	assert.Contains(t, v.Trace[1].Signals, SignalClassifier)
}

func TestTraceFollowsPriorityOrder(t *testing.T) {
	r := newTestResolver(t)

	v := r.ResolveText("refund please")
	require.Len(t, v.Trace, 4)
	for i, c := range PriorityOrder() {
		assert.Equal(t, c, v.Trace[i].Category)
	}
	assert.True(t, v.Trace[2].Matched)
	assert.Equal(t, []string{"keyword:refund*"}, v.Trace[2].Signals)
}

func TestKeywordConfidence(t *testing.T) {
	assert.Equal(t, 0.0, keywordConfidence(0))
	assert.Equal(t, 0.5, keywordConfidence(1))
	assert.Equal(t, 0.75, keywordConfidence(2))
	assert.Equal(t, 0.875, keywordConfidence(3))
}

func TestCompileKeyword(t *testing.T) {
	tests := []struct {
		keyword string
		text    string
		want    bool
	}{
		{"claim*", "claims department", true},
		{"claim*", "reclaim the deposit", false},
		{"pay", "i want to pay", true},
		{"pay", "payment", false},
		{"due date", "the due  date passed", true},
		{"new policy", "renew policy", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compileKeyword(tt.keyword).MatchString(tt.text), "%s in %q", tt.keyword, tt.text)
	}
}

func TestResolverConfigValidation(t *testing.T) {
	catalog, err := DefaultRuleCatalog()
	require.NoError(t, err)

	_, err = NewLabelResolver(catalog, &ResolverConfig{MinConfidence: 0, AmbiguityMargin: 0.1})
	assert.Error(t, err)
	_, err = NewLabelResolver(catalog, &ResolverConfig{MinConfidence: 0.5, AmbiguityMargin: 1.5})
	assert.Error(t, err)
	_, err = NewLabelResolver(nil, nil)
	assert.Error(t, err)

	r, err := NewLabelResolver(catalog, &ResolverConfig{MinConfidence: 0.7, AmbiguityMargin: 0})
	require.NoError(t, err)
	assert.True(t, r.ResolveText("refund").NeedsHumanReview(), "one hit is below 0.7")
	requireDecided(t, r.ResolveText("refund for the invoice"), domain.CategoryAccountsBilling)
}

func TestParseRuleCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "invalid yaml", yaml: "rules: ["},
		{name: "unknown category", yaml: validCatalogYAML() + "  SPAM:\n    keywords: [win]\n"},
		{name: "missing category", yaml: "version: 1\nrules:\n  CLAIMS:\n    keywords: [claim]\n"},
		{name: "bad regex", yaml: strings.Replace(validCatalogYAML(), "keywords: [promo]", "patterns: [{name: x, regex: '('}]", 1)},
		{name: "empty keyword", yaml: strings.Replace(validCatalogYAML(), "[promo]", "['*']", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	catalog, err := ParseRuleCatalog([]byte(validCatalogYAML()))
	require.NoError(t, err)
	r, err := NewLabelResolver(catalog, nil)
	require.NoError(t, err)
	requireDecided(t, r.ResolveText("big promo"), domain.CategoryPolicyInformationMarketing)
}

func TestLoadRuleCatalogDefaultsToEmbedded(t *testing.T) {
	catalog, err := LoadRuleCatalog("")
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Version)
	assert.Len(t, catalog.Rules, 4)

	_, err = LoadRuleCatalog("/nonexistent/rules.yaml")
	assert.Error(t, err)
}

func TestResolverIsSafeForConcurrentUse(t *testing.T) {
	r := newTestResolver(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				v := r.ResolveText("Claim #AB1234567 payment of $500 pending")
				c, ok := v.Category()
				if !ok || c != domain.CategoryClaims {
					t.Errorf("unexpected verdict %s", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func validCatalogYAML() string {
	return "version: 1\nrules:\n" +
		"  CLAIMS:\n    keywords: [claim]\n" +
		"  POLICY_PURCHASE:\n    keywords: [quote]\n" +
		"  ACCOUNTS_BILLING:\n    keywords: [invoice]\n" +
		"  POLICY_INFORMATION_MARKETING:\n    keywords: [promo]\n"
}
