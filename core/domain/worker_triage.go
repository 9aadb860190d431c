package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriageResult is one processed email: its canonical input and the verdict.
// It is what the audit log, the review queue and the routing graph receive.
type TriageResult struct {
	ID              uuid.UUID      `json:"id"`
	EmailID         string         `json:"email_id"`
	SenderDomain    string         `json:"sender_domain"`
	Input           CanonicalInput `json:"input"`
	TemplateVersion int            `json:"template_version"`
	Verdict         LabelVerdict   `json:"verdict"`
	ScorerUsed      bool           `json:"scorer_used"`
	ProcessingMs    int64          `json:"processing_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

// TrainingExample is a human-confirmed label paired with the canonical input
// rendered by the same preprocessing used at inference time.
type TrainingExample struct {
	EmailID         string         `json:"email_id" bson:"email_id"`
	Input           CanonicalInput `json:"input" bson:"input"`
	TemplateVersion int            `json:"template_version" bson:"template_version"`
	Label           Category       `json:"label" bson:"label"`
	LabelName       string         `json:"label_name" bson:"label_name"`
	LabeledBy       string         `json:"labeled_by,omitempty" bson:"labeled_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at" bson:"created_at"`
}

// RoutingCount is how often a sender domain went to one target: a category
// name or NEEDS_REVIEW.
type RoutingCount struct {
	Target string `json:"target"`
	Count  int64  `json:"count"`
}

// ItemError is a failure at one position of a batch.
type ItemError struct {
	Index int
	Err   error
}

// BatchError lists the failed positions of a batch.
type BatchError struct {
	Failed []ItemError
}

func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("batch triage: email %d failed: %v", e.Failed[0].Index, e.Failed[0].Err)
	}
	return fmt.Sprintf("batch triage: %d emails failed, first at %d: %v",
		len(e.Failed), e.Failed[0].Index, e.Failed[0].Err)
}

func (e *BatchError) Unwrap() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0].Err
}
