package out

import (
	"context"

	"triage_worker/core/domain"
)

// CategoryScorer is the external classifier. It scores a canonical input
// per category; scores are expected in [0,1].
type CategoryScorer interface {
	Name() string
	Score(ctx context.Context, input domain.CanonicalInput) (map[domain.Category]float64, error)
}
