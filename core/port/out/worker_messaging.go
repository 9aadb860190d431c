package out

import (
	"context"
	"time"

	"triage_worker/core/domain"
)

// Time alias for JSON serialization
type Time = time.Time

// ReviewQueue hands triage results to the downstream collaborators:
// NEEDS_REVIEW results go to the human review queue, decided results to the
// routing stream.
type ReviewQueue interface {
	PublishReview(ctx context.Context, job *ReviewJob) error
	PublishRouted(ctx context.Context, job *RoutedJob) error
}

// ReviewJob is a result awaiting a human reviewer.
type ReviewJob struct {
	ResultID     string                  `json:"result_id"`
	EmailID      string                  `json:"email_id"`
	SenderDomain string                  `json:"sender_domain"`
	Reason       string                  `json:"reason"`
	Trace        []domain.RuleEvaluation `json:"trace,omitempty"`
	CreatedAt    Time                    `json:"created_at"`
}

// RoutedJob is a decided result for the category's business queue.
type RoutedJob struct {
	ResultID     string `json:"result_id"`
	EmailID      string `json:"email_id"`
	SenderDomain string `json:"sender_domain"`
	CategoryID   int    `json:"category_id"`
	CategoryName string `json:"category_name"`
	CreatedAt    Time   `json:"created_at"`
}

// InboundEmailJob is the payload of the inbound triage stream.
type InboundEmailJob struct {
	Email      *domain.RawEmail `json:"email"`
	EnqueuedAt Time             `json:"enqueued_at"`
}

// InboundQueue accepts emails for asynchronous triage.
type InboundQueue interface {
	EnqueueInbound(ctx context.Context, job *InboundEmailJob) (string, error)
}
