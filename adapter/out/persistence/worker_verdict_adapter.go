// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

// =============================================================================
// Verdict Adapter
// =============================================================================

// VerdictAdapter is the Postgres audit log of triage results.
type VerdictAdapter struct {
	db *sqlx.DB
}

var _ out.VerdictRepository = (*VerdictAdapter)(nil)

// NewVerdictAdapter creates a new VerdictAdapter.
func NewVerdictAdapter(db *sqlx.DB) *VerdictAdapter {
	return &VerdictAdapter{db: db}
}

// verdictRow represents the database row.
type verdictRow struct {
	ID              uuid.UUID      `db:"id"`
	EmailID         string         `db:"email_id"`
	SenderDomain    string         `db:"sender_domain"`
	Input           string         `db:"input"`
	TemplateVersion int            `db:"template_version"`
	Outcome         string         `db:"outcome"`
	CategoryID      sql.NullInt64  `db:"category_id"`
	Reason          string         `db:"reason"`
	MatchedRules    pq.StringArray `db:"matched_rules"`
	Trace           []byte         `db:"trace"`
	ScorerUsed      bool           `db:"scorer_used"`
	ProcessingMs    int64          `db:"processing_ms"`
	CreatedAt       time.Time      `db:"created_at"`
}

const verdictColumns = `id, email_id, sender_domain, input, template_version, outcome,
	category_id, reason, matched_rules, trace, scorer_used, processing_ms, created_at`

func (r *verdictRow) toEntity() (*domain.TriageResult, error) {
	var verdict domain.LabelVerdict
	switch domain.Outcome(r.Outcome) {
	case domain.OutcomeDecided:
		if !r.CategoryID.Valid {
			return nil, fmt.Errorf("verdict %s: decided without category", r.ID)
		}
		c, err := domain.CategoryFromID(int(r.CategoryID.Int64))
		if err != nil {
			return nil, fmt.Errorf("verdict %s: %w", r.ID, err)
		}
		verdict = domain.Decided(c)
	case domain.OutcomeNeedsReview:
		verdict = domain.NeedsReview(r.Reason)
	default:
		return nil, fmt.Errorf("verdict %s: unknown outcome %q", r.ID, r.Outcome)
	}

	if len(r.Trace) > 0 {
		var trace []domain.RuleEvaluation
		if err := json.Unmarshal(r.Trace, &trace); err != nil {
			return nil, fmt.Errorf("verdict %s: decode trace: %w", r.ID, err)
		}
		verdict = verdict.WithTrace(trace)
	}

	return &domain.TriageResult{
		ID:              r.ID,
		EmailID:         r.EmailID,
		SenderDomain:    r.SenderDomain,
		Input:           domain.CanonicalInput(r.Input),
		TemplateVersion: r.TemplateVersion,
		Verdict:         verdict,
		ScorerUsed:      r.ScorerUsed,
		ProcessingMs:    r.ProcessingMs,
		CreatedAt:       r.CreatedAt,
	}, nil
}

// Save appends a triage result and reports whether a row was written.
// Result ids are derived from the email id and template version, so a
// redelivered message hits the conflict and leaves the first entry.
func (a *VerdictAdapter) Save(ctx context.Context, result *domain.TriageResult) (bool, error) {
	var categoryID sql.NullInt64
	if c, ok := result.Verdict.Category(); ok {
		categoryID = sql.NullInt64{Int64: int64(c.ID()), Valid: true}
	}

	trace, err := json.Marshal(result.Verdict.Trace)
	if err != nil {
		return false, fmt.Errorf("failed to encode verdict trace: %w", err)
	}

	query := `
		INSERT INTO triage_verdicts (` + verdictColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	res, err := a.db.ExecContext(ctx, query,
		result.ID,
		result.EmailID,
		result.SenderDomain,
		string(result.Input),
		result.TemplateVersion,
		string(result.Verdict.Outcome()),
		categoryID,
		result.Verdict.Reason(),
		pq.Array(matchedRules(result.Verdict.Trace)),
		trace,
		result.ScorerUsed,
		result.ProcessingMs,
		result.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save triage verdict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save triage verdict: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves a triage result by ID.
func (a *VerdictAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.TriageResult, error) {
	var row verdictRow
	query := `SELECT ` + verdictColumns + ` FROM triage_verdicts WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("triage result")
		}
		return nil, fmt.Errorf("failed to get triage verdict: %w", err)
	}

	return row.toEntity()
}

// ListPendingReview returns the most recent results routed to human review.
func (a *VerdictAdapter) ListPendingReview(ctx context.Context, limit int) ([]*domain.TriageResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var rows []verdictRow
	query := `SELECT ` + verdictColumns + ` FROM triage_verdicts
		WHERE outcome = $1 ORDER BY created_at DESC LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, string(domain.OutcomeNeedsReview), limit); err != nil {
		return nil, fmt.Errorf("failed to list pending review: %w", err)
	}

	results := make([]*domain.TriageResult, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// matchedRules lists the categories whose rule reached its threshold.
func matchedRules(trace []domain.RuleEvaluation) []string {
	names := make([]string, 0, len(trace))
	for _, eval := range trace {
		if eval.Matched {
			names = append(names, eval.Category.String())
		}
	}
	return names
}
