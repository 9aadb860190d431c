package in

import (
	"context"

	"github.com/google/uuid"

	"triage_worker/core/domain"
)

// Normalizer renders the canonical model input for an email.
type Normalizer interface {
	Normalize(email *domain.RawEmail) domain.CanonicalInput
	EvidenceText(email *domain.RawEmail) string
	Version() int
}

// LabelResolver applies the priority policy to evidence.
type LabelResolver interface {
	Resolve(evidence domain.Evidence) domain.LabelVerdict
}

// TriageService classifies inbound emails end to end.
type TriageService interface {
	// Triage normalizes, scores, resolves, records and routes one email.
	Triage(ctx context.Context, email *domain.RawEmail) (*domain.TriageResult, error)

	// TriageBatch triages emails concurrently; results keep input order.
	TriageBatch(ctx context.Context, emails []*domain.RawEmail) ([]*domain.TriageResult, error)

	// RecordLabel stores a human-confirmed label as a training example.
	RecordLabel(ctx context.Context, req *RecordLabelRequest) (*domain.TrainingExample, error)
}

// RecordLabelRequest carries a reviewer's decision for an email.
type RecordLabelRequest struct {
	Email     *domain.RawEmail `json:"email"`
	Label     domain.Category  `json:"label"`
	LabeledBy string           `json:"labeled_by,omitempty"`
}

// TriageQueries reads the audit trail and queues work asynchronously.
type TriageQueries interface {
	GetResult(ctx context.Context, id uuid.UUID) (*domain.TriageResult, error)
	PendingReview(ctx context.Context, limit int) ([]*domain.TriageResult, error)
	SenderRouting(ctx context.Context, sender string) ([]domain.RoutingCount, error)
	LabelCounts(ctx context.Context) (map[domain.Category]int64, error)
	GetLabel(ctx context.Context, emailID string) (*domain.TrainingExample, error)
	Enqueue(ctx context.Context, email *domain.RawEmail) (string, error)
}
