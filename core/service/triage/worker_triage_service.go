// Package triage runs the inference path for one inbound email:
// normalize, score, resolve, then record and route the verdict.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
)

// Namespaces for name-based ids. Retrying the same email yields the same
// email id and result id, so the audit log keeps one entry per email and
// template version.
var (
	emailIDNamespace  = uuid.MustParse("6f1f3c1e-2b4d-5a8e-9c0f-7d2e4b6a8c10")
	resultIDNamespace = uuid.MustParse("b3a7d9e2-4c1f-5e6a-8b0d-2f9c7e5a1d34")
)

// ResultID returns the audit id of an email triaged with a template version.
func ResultID(emailID string, templateVersion int) uuid.UUID {
	return uuid.NewSHA1(resultIDNamespace, []byte(fmt.Sprintf("%s:v%d", emailID, templateVersion)))
}

// contentEmailID derives an email id from the canonical input for emails
// that arrive without one.
func contentEmailID(input domain.CanonicalInput) string {
	return uuid.NewSHA1(emailIDNamespace, []byte(input)).String()
}

// Config holds service options.
type Config struct {
	ScorerTimeout time.Duration // per-email budget for the external classifier
	BatchWorkers  int           // concurrent emails in TriageBatch
	MaxBatchSize  int
}

// DefaultConfig returns the default service options.
func DefaultConfig() *Config {
	return &Config{
		ScorerTimeout: 5 * time.Second,
		BatchWorkers:  8,
		MaxBatchSize:  500,
	}
}

// Deps are the collaborators of the service. Only Normalizer and Resolver
// are required; every sink is skipped when nil.
type Deps struct {
	Normalizer in.Normalizer
	Resolver   in.LabelResolver
	Scorer     out.CategoryScorer
	Verdicts   out.VerdictRepository
	Queue      out.ReviewQueue
	Examples   out.TrainingExampleStore
	Graph      out.VerdictGraph
	Inbound    out.InboundQueue
	Metrics    *metrics.TriageMetrics
}

// Service implements in.TriageService.
type Service struct {
	normalizer in.Normalizer
	resolver   in.LabelResolver
	scorer     out.CategoryScorer
	verdicts   out.VerdictRepository
	queue      out.ReviewQueue
	examples   out.TrainingExampleStore
	graph      out.VerdictGraph
	inbound    out.InboundQueue
	metrics    *metrics.TriageMetrics

	config *Config
	now    func() time.Time
}

var (
	_ in.TriageService = (*Service)(nil)
	_ in.TriageQueries = (*Service)(nil)
)

// NewService creates a triage service.
func NewService(deps Deps, config *Config) (*Service, error) {
	if deps.Normalizer == nil {
		return nil, errors.New("triage: normalizer is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("triage: label resolver is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchWorkers <= 0 {
		config.BatchWorkers = 1
	}

	return &Service{
		normalizer: deps.Normalizer,
		resolver:   deps.Resolver,
		scorer:     deps.Scorer,
		verdicts:   deps.Verdicts,
		queue:      deps.Queue,
		examples:   deps.Examples,
		graph:      deps.Graph,
		inbound:    deps.Inbound,
		metrics:    deps.Metrics,
		config:     config,
		now:        time.Now,
	}, nil
}

// =============================================================================
// Triage
// =============================================================================

// Triage classifies one email. A nil email is treated as an email with
// every field absent; it normalizes and resolves like any other.
//
// The verdict never depends on the sinks. An audit or queue failure is
// returned so the caller can retry; a graph failure is only logged.
// A retry writes no second audit entry and does not count the routing
// again; the queue job is republished with the same result id.
func (s *Service) Triage(ctx context.Context, email *domain.RawEmail) (*domain.TriageResult, error) {
	start := s.now()
	if email == nil {
		email = &domain.RawEmail{}
	}

	result := s.classify(ctx, email)
	result.ProcessingMs = s.now().Sub(start).Milliseconds()

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"email_id": result.EmailID,
		"verdict":  result.Verdict.String(),
	})
	log.WithDuration(time.Duration(result.ProcessingMs) * time.Millisecond).Debug("email triaged")

	if err := s.record(ctx, result); err != nil {
		log.WithError(err).Error("failed to record triage result")
		if s.metrics != nil {
			s.metrics.ObserveFailure()
		}
		return nil, err
	}
	s.observe(result)
	return result, nil
}

func (s *Service) observe(result *domain.TriageResult) {
	if s.metrics == nil {
		return
	}
	took := time.Duration(result.ProcessingMs) * time.Millisecond
	if c, ok := result.Verdict.Category(); ok {
		s.metrics.ObserveDecided(c.String(), took)
		return
	}
	s.metrics.ObserveReview(result.Verdict.Reason(), took)
}

// classify runs the pure part of triage: normalize, score, resolve.
func (s *Service) classify(ctx context.Context, email *domain.RawEmail) *domain.TriageResult {
	input := s.normalizer.Normalize(email)
	version := s.normalizer.Version()

	emailID := email.ID
	if emailID == "" {
		emailID = contentEmailID(input)
	}

	// The scorer sees the whole template; keywords only the content fields.
	evidence := domain.Evidence{Text: s.normalizer.EvidenceText(email)}
	scores, ok := s.score(ctx, emailID, input)
	if ok {
		evidence.Scores = scores
	}

	return &domain.TriageResult{
		ID:              ResultID(emailID, version),
		EmailID:         emailID,
		SenderDomain:    email.SenderDomainOr(""),
		Input:           input,
		TemplateVersion: version,
		Verdict:         s.resolver.Resolve(evidence),
		ScorerUsed:      ok,
		CreatedAt:       s.now().UTC(),
	}
}

// score calls the external classifier. Any failure degrades to keyword
// evidence only.
func (s *Service) score(ctx context.Context, emailID string, input domain.CanonicalInput) (map[domain.Category]float64, bool) {
	if s.scorer == nil {
		return nil, false
	}

	if s.config.ScorerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ScorerTimeout)
		defer cancel()
	}

	start := s.now()
	scores, err := s.scorer.Score(ctx, input)
	if s.metrics != nil {
		s.metrics.ObserveScorer(err == nil, s.now().Sub(start))
	}
	if err != nil {
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"email_id": emailID,
			"scorer":   s.scorer.Name(),
		}).Warn("scorer failed, resolving on keywords only")
		return nil, false
	}
	return scores, true
}

// record writes the audit entry, then routes the result.
func (s *Service) record(ctx context.Context, result *domain.TriageResult) error {
	inserted := true
	if s.verdicts != nil {
		var err error
		inserted, err = s.verdicts.Save(ctx, result)
		if err != nil {
			return sinkError("save triage result", err, apperr.DatabaseError)
		}
	}

	if s.graph != nil && inserted {
		if err := s.graph.RecordRouting(ctx, result); err != nil {
			logger.WithContext(ctx).WithError(err).
				WithField("email_id", result.EmailID).
				Warn("failed to record routing graph")
		}
	}

	if s.queue == nil {
		return nil
	}
	if err := s.publish(ctx, result); err != nil {
		return sinkError("review queue", err, apperr.ExternalError)
	}
	return nil
}

// sinkError wraps a sink failure. A deadline overrun becomes TIMEOUT so
// callers can tell a slow store from a failing one.
func sinkError(operation string, err error, wrap func(string, error) *apperr.AppError) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(operation, err)
	}
	return wrap(operation, err)
}

func (s *Service) publish(ctx context.Context, result *domain.TriageResult) error {
	if category, ok := result.Verdict.Category(); ok {
		return s.queue.PublishRouted(ctx, &out.RoutedJob{
			ResultID:     result.ID.String(),
			EmailID:      result.EmailID,
			SenderDomain: result.SenderDomain,
			CategoryID:   category.ID(),
			CategoryName: category.String(),
			CreatedAt:    result.CreatedAt,
		})
	}

	return s.queue.PublishReview(ctx, &out.ReviewJob{
		ResultID:     result.ID.String(),
		EmailID:      result.EmailID,
		SenderDomain: result.SenderDomain,
		Reason:       result.Verdict.Reason(),
		Trace:        result.Verdict.Trace,
		CreatedAt:    result.CreatedAt,
	})
}

// =============================================================================
// Training Labels
// =============================================================================

// RecordLabel stores a reviewer's label together with the canonical input
// produced by the same normalizer used for inference.
func (s *Service) RecordLabel(ctx context.Context, req *in.RecordLabelRequest) (*domain.TrainingExample, error) {
	if req == nil || req.Email == nil {
		return nil, apperr.MissingField("email")
	}
	if !req.Label.IsValid() {
		return nil, apperr.InvalidInput("label", "unknown category id")
	}
	if s.examples == nil {
		return nil, apperr.Unavailable("training example store")
	}

	input := s.normalizer.Normalize(req.Email)
	emailID := req.Email.ID
	if emailID == "" {
		emailID = contentEmailID(input)
	}

	example := &domain.TrainingExample{
		EmailID:         emailID,
		Input:           input,
		TemplateVersion: s.normalizer.Version(),
		Label:           req.Label,
		LabelName:       req.Label.String(),
		LabeledBy:       req.LabeledBy,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.examples.SaveExample(ctx, example); err != nil {
		return nil, apperr.DatabaseError("save training example", err)
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"email_id": example.EmailID,
		"label":    example.LabelName,
	}).Info("training example recorded")
	return example, nil
}

// GetLabel returns the confirmed label recorded for an email.
func (s *Service) GetLabel(ctx context.Context, emailID string) (*domain.TrainingExample, error) {
	if emailID == "" {
		return nil, apperr.MissingField("email_id")
	}
	if s.examples == nil {
		return nil, apperr.Unavailable("training example store")
	}
	example, err := s.examples.GetExample(ctx, emailID)
	if err != nil {
		return nil, apperr.DatabaseError("get training example", err)
	}
	if example == nil {
		return nil, apperr.NotFound("training example")
	}
	return example, nil
}

// LabelCounts returns how many training examples exist per category.
func (s *Service) LabelCounts(ctx context.Context) (map[domain.Category]int64, error) {
	if s.examples == nil {
		return nil, apperr.Unavailable("training example store")
	}
	counts, err := s.examples.CountByLabel(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("count training examples", err)
	}
	return counts, nil
}
