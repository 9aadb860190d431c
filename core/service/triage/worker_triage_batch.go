package triage

import (
	"context"
	"fmt"

	"github.com/go-pkgz/pool"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
)

// batchItem is one email of a batch and the slot its result goes to.
type batchItem struct {
	index int
	email *domain.RawEmail
}

// batchWorker implements pool.Worker for batch triage.
type batchWorker struct {
	svc     *Service
	results []*domain.TriageResult
	errs    []error
}

// Do implements pool.Worker. Each item owns its own slot, so no locking is
// needed; a failed email never stops the rest of the batch.
func (w *batchWorker) Do(ctx context.Context, item batchItem) error {
	result, err := w.svc.Triage(ctx, item.email)
	if err != nil {
		w.errs[item.index] = err
		return nil
	}
	w.results[item.index] = result
	return nil
}

// TriageBatch triages emails concurrently. Results keep input order. If any
// email fails, the successful results are still returned together with a
// BatchError describing the failed positions.
func (s *Service) TriageBatch(ctx context.Context, emails []*domain.RawEmail) ([]*domain.TriageResult, error) {
	if len(emails) == 0 {
		return []*domain.TriageResult{}, nil
	}
	if s.config.MaxBatchSize > 0 && len(emails) > s.config.MaxBatchSize {
		return nil, apperr.BatchTooLarge(len(emails), s.config.MaxBatchSize)
	}

	workers := s.config.BatchWorkers
	if workers > len(emails) {
		workers = len(emails)
	}

	w := &batchWorker{
		svc:     s,
		results: make([]*domain.TriageResult, len(emails)),
		errs:    make([]error, len(emails)),
	}

	p := pool.New[batchItem](workers, w).WithContinueOnError()
	if err := p.Go(ctx); err != nil {
		return nil, fmt.Errorf("start batch pool: %w", err)
	}
	for i, email := range emails {
		p.Submit(batchItem{index: i, email: email})
	}
	if err := p.Close(ctx); err != nil {
		return nil, fmt.Errorf("batch triage: %w", err)
	}

	batchErr := &domain.BatchError{}
	for i, err := range w.errs {
		if err != nil {
			batchErr.Failed = append(batchErr.Failed, domain.ItemError{Index: i, Err: err})
		}
	}
	if len(batchErr.Failed) > 0 {
		logger.WithContext(ctx).WithFields(map[string]any{
			"batch_size": len(emails),
			"failed":     len(batchErr.Failed),
		}).Warn("batch triage finished with failures")
		return w.results, batchErr
	}
	return w.results, nil
}
