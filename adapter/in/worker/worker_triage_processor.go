package worker

import (
	"context"
	"time"

	"triage_worker/core/port/in"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
)

// TriageProcessor triages emails queued on the inbound stream.
type TriageProcessor struct {
	triage in.TriageService
}

// NewTriageProcessor creates a new triage processor.
func NewTriageProcessor(triage in.TriageService) *TriageProcessor {
	return &TriageProcessor{triage: triage}
}

// ProcessInbound triages one inbound job. A returned error leaves the
// message pending so the consumer retries it.
func (p *TriageProcessor) ProcessInbound(ctx context.Context, data []byte) error {
	job, err := DecodeInbound(data)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, logger.EmailIDKey, job.Email.ID)
	result, err := p.triage.Triage(ctx, job.Email)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeTimeout) {
			logger.WithContext(ctx).WithError(err).Warn("triage timed out, message left pending")
		}
		return err
	}

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"result_id": result.ID.String(),
		"verdict":   result.Verdict.String(),
	})
	if !job.EnqueuedAt.IsZero() {
		log = log.WithDuration(time.Since(job.EnqueuedAt))
	}
	log.Info("inbound email triaged")
	return nil
}
