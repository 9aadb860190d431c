package domain

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Outcome tells which of the two verdict shapes a LabelVerdict carries.
type Outcome string

const (
	OutcomeDecided     Outcome = "decided"
	OutcomeNeedsReview Outcome = "needs_review"
)

// ReasonNoRuleMatched is the review reason when no rule reached its threshold.
const ReasonNoRuleMatched = "no rule matched"

// Evidence is what the label resolver decides on. Text is raw or canonical
// email text; Scores is the external classifier's per-category output.
// Either may be empty.
type Evidence struct {
	Text   string               `json:"text,omitempty"`
	Scores map[Category]float64 `json:"scores,omitempty"`
}

// IsEmpty reports whether the evidence carries no signal at all.
func (e Evidence) IsEmpty() bool {
	return e.Text == "" && len(e.Scores) == 0
}

// RuleEvaluation records how one priority rule scored the evidence.
type RuleEvaluation struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Matched    bool     `json:"matched"`
	Signals    []string `json:"signals,omitempty"`
}

// LabelVerdict is the result of label resolution: either a single decided
// category or a request for human review with a reason. The two shapes are
// exclusive; use Decided or NeedsReview to build one.
type LabelVerdict struct {
	outcome  Outcome
	category Category
	reason   string

	// Trace lists every rule evaluation in priority order, for audit.
	Trace []RuleEvaluation
}

// Decided builds a verdict assigning category c.
func Decided(c Category) LabelVerdict {
	return LabelVerdict{outcome: OutcomeDecided, category: c}
}

// NeedsReview builds a verdict routing the email to a human.
func NeedsReview(reason string) LabelVerdict {
	if reason == "" {
		reason = ReasonNoRuleMatched
	}
	return LabelVerdict{outcome: OutcomeNeedsReview, reason: reason}
}

// WithTrace returns a copy of v carrying the given rule trace.
func (v LabelVerdict) WithTrace(trace []RuleEvaluation) LabelVerdict {
	v.Trace = trace
	return v
}

func (v LabelVerdict) Outcome() Outcome { return v.outcome }

// IsDecided reports whether a category was assigned.
func (v LabelVerdict) IsDecided() bool { return v.outcome == OutcomeDecided }

// NeedsHumanReview reports whether the email must go to the review queue.
func (v LabelVerdict) NeedsHumanReview() bool { return v.outcome == OutcomeNeedsReview }

// Category returns the decided category. ok is false for review verdicts.
func (v LabelVerdict) Category() (c Category, ok bool) {
	if v.outcome != OutcomeDecided {
		return 0, false
	}
	return v.category, true
}

// Reason returns the review reason, empty for decided verdicts.
func (v LabelVerdict) Reason() string { return v.reason }

func (v LabelVerdict) String() string {
	if v.IsDecided() {
		return "DECIDED(" + v.category.String() + ")"
	}
	return "NEEDS_REVIEW(" + v.reason + ")"
}

type verdictJSON struct {
	Decided     *int             `json:"decided,omitempty"`
	NeedsReview bool             `json:"needs_review,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Trace       []RuleEvaluation `json:"trace,omitempty"`
}

// MarshalJSON renders {"decided": id} or {"needs_review": true, "reason": ...}.
func (v LabelVerdict) MarshalJSON() ([]byte, error) {
	out := verdictJSON{Trace: v.Trace}
	switch v.outcome {
	case OutcomeDecided:
		id := v.category.ID()
		out.Decided = &id
	case OutcomeNeedsReview:
		out.NeedsReview = true
		out.Reason = v.reason
	default:
		return nil, errors.New("label verdict has no outcome")
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts exactly one of the two verdict shapes.
func (v *LabelVerdict) UnmarshalJSON(data []byte) error {
	var in verdictJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch {
	case in.Decided != nil && in.NeedsReview:
		return errors.New("label verdict cannot be both decided and needs_review")
	case in.Decided != nil:
		c, err := CategoryFromID(*in.Decided)
		if err != nil {
			return fmt.Errorf("label verdict: %w", err)
		}
		*v = Decided(c).WithTrace(in.Trace)
	case in.NeedsReview:
		*v = NeedsReview(in.Reason).WithTrace(in.Trace)
	default:
		return errors.New("label verdict has neither decided nor needs_review")
	}
	return nil
}
