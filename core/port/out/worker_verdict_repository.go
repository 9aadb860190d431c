package out

import (
	"context"

	"triage_worker/core/domain"

	"github.com/google/uuid"
)

// VerdictRepository is the audit log of triage results.
type VerdictRepository interface {
	// Save stores result and reports whether it was new. Saving an id that
	// is already stored keeps the first entry and returns false.
	Save(ctx context.Context, result *domain.TriageResult) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TriageResult, error)
	ListPendingReview(ctx context.Context, limit int) ([]*domain.TriageResult, error)
}

// TrainingExampleStore keeps human-confirmed labels with their canonical input.
type TrainingExampleStore interface {
	SaveExample(ctx context.Context, example *domain.TrainingExample) error
	// GetExample returns nil, nil when the email has no example.
	GetExample(ctx context.Context, emailID string) (*domain.TrainingExample, error)
	CountByLabel(ctx context.Context) (map[domain.Category]int64, error)
}

// VerdictGraph records which category each sender domain was routed to.
type VerdictGraph interface {
	RecordRouting(ctx context.Context, result *domain.TriageResult) error
	SenderRouting(ctx context.Context, sender string) ([]domain.RoutingCount, error)
}
