package triage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

// GetResult returns one audit entry.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*domain.TriageResult, error) {
	if s.verdicts == nil {
		return nil, apperr.Unavailable("verdict repository")
	}
	result, err := s.verdicts.GetByID(ctx, id)
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, apperr.DatabaseError("get triage result", err)
	}
	return result, nil
}

// PendingReview lists the latest results waiting for a human reviewer.
func (s *Service) PendingReview(ctx context.Context, limit int) ([]*domain.TriageResult, error) {
	if s.verdicts == nil {
		return nil, apperr.Unavailable("verdict repository")
	}
	results, err := s.verdicts.ListPendingReview(ctx, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list pending review", err)
	}
	return results, nil
}

// SenderRouting returns where emails from a sender domain were routed.
func (s *Service) SenderRouting(ctx context.Context, sender string) ([]domain.RoutingCount, error) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return nil, apperr.MissingField("sender")
	}
	if s.graph == nil {
		return nil, apperr.Unavailable("routing graph")
	}
	counts, err := s.graph.SenderRouting(ctx, sender)
	if err != nil {
		return nil, apperr.ExternalError("routing graph", err)
	}
	return counts, nil
}

// Enqueue queues an email for the stream worker and returns the message id.
// An email without an id is given one here, so every redelivery of the
// message is triaged under the same id.
func (s *Service) Enqueue(ctx context.Context, email *domain.RawEmail) (string, error) {
	if email == nil {
		return "", apperr.MissingField("email")
	}
	if s.inbound == nil {
		return "", apperr.Unavailable("inbound queue")
	}
	queued := *email
	if queued.ID == "" {
		queued.ID = uuid.NewString()
	}
	id, err := s.inbound.EnqueueInbound(ctx, &out.InboundEmailJob{
		Email:      &queued,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", apperr.ExternalError("inbound queue", err)
	}
	return id, nil
}
