package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/response"
)

// TriageHandler serves the inference endpoints and the audit queries.
type TriageHandler struct {
	normalizer in.Normalizer
	resolver   in.LabelResolver
	triage     in.TriageService
	queries    in.TriageQueries
}

// NewTriageHandler creates a new TriageHandler.
func NewTriageHandler(
	normalizer in.Normalizer,
	resolver in.LabelResolver,
	triage in.TriageService,
	queries in.TriageQueries,
) *TriageHandler {
	return &TriageHandler{
		normalizer: normalizer,
		resolver:   resolver,
		triage:     triage,
		queries:    queries,
	}
}

// Register registers triage routes.
func (h *TriageHandler) Register(app fiber.Router) {
	app.Post("/normalize", h.Normalize)
	app.Post("/resolve", h.Resolve)

	t := app.Group("/triage")
	t.Post("/", h.Triage)
	t.Post("/batch", h.TriageBatch)
	t.Post("/async", h.Enqueue)

	app.Get("/verdicts/:id", h.GetVerdict)
	app.Get("/reviews/pending", h.PendingReview)
	app.Get("/routing/:sender", h.SenderRouting)
}

// =============================================================================
// Pure Operations
// =============================================================================

type normalizeResponse struct {
	Input           domain.CanonicalInput `json:"input"`
	TemplateVersion int                   `json:"template_version"`
}

// Normalize renders the canonical model input without classifying.
func (h *TriageHandler) Normalize(c *fiber.Ctx) error {
	var email domain.RawEmail
	if err := parseBody(c, &email); err != nil {
		return err
	}
	return response.OK(c, normalizeResponse{
		Input:           h.normalizer.Normalize(&email),
		TemplateVersion: h.normalizer.Version(),
	})
}

// resolveRequest carries evidence. Scores are keyed by category name;
// names outside the registry carry no signal and are dropped.
type resolveRequest struct {
	Text   string             `json:"text"`
	Scores map[string]float64 `json:"scores"`
}

func (r *resolveRequest) evidence() domain.Evidence {
	evidence := domain.Evidence{Text: r.Text}
	if len(r.Scores) == 0 {
		return evidence
	}
	evidence.Scores = make(map[domain.Category]float64, len(r.Scores))
	for name, score := range r.Scores {
		category, err := domain.ParseCategory(name)
		if err != nil {
			continue
		}
		evidence.Scores[category] = score
	}
	return evidence
}

// Resolve applies the priority policy to caller supplied evidence.
func (h *TriageHandler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return response.OK(c, h.resolver.Resolve(req.evidence()))
}

// =============================================================================
// Triage
// =============================================================================

// Triage classifies, records and routes one email.
func (h *TriageHandler) Triage(c *fiber.Ctx) error {
	var email domain.RawEmail
	if err := parseBody(c, &email); err != nil {
		return err
	}
	result, err := h.triage.Triage(c.UserContext(), &email)
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

type batchRequest struct {
	Emails []*domain.RawEmail `json:"emails"`
}

type batchFailure struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type batchResponse struct {
	Results []*domain.TriageResult `json:"results"`
	Failed  []batchFailure         `json:"failed,omitempty"`
}

// TriageBatch classifies many emails. Failed positions hold null in
// results and are listed under failed.
func (h *TriageHandler) TriageBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	results, err := h.triage.TriageBatch(c.UserContext(), req.Emails)
	var batchErr *domain.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return err
	}

	resp := batchResponse{Results: results}
	if batchErr != nil {
		for _, item := range batchErr.Failed {
			appErr := apperr.AsAppError(item.Err)
			resp.Failed = append(resp.Failed, batchFailure{
				Index:   item.Index,
				Code:    appErr.Code,
				Message: appErr.Message,
			})
		}
	}
	return response.OK(c, resp)
}

// Enqueue queues an email for the stream worker.
func (h *TriageHandler) Enqueue(c *fiber.Ctx) error {
	var email domain.RawEmail
	if err := parseBody(c, &email); err != nil {
		return err
	}
	id, err := h.queries.Enqueue(c.UserContext(), &email)
	if err != nil {
		return err
	}
	return response.Accepted(c, fiber.Map{"message_id": id})
}

// =============================================================================
// Audit Queries
// =============================================================================

// GetVerdict returns one triage result from the audit log.
func (h *TriageHandler) GetVerdict(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.InvalidInput("id", "must be a UUID")
	}
	result, err := h.queries.GetResult(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

// PendingReview lists results routed to human review, newest first.
func (h *TriageHandler) PendingReview(c *fiber.Ctx) error {
	limit := queryLimit(c, 50, 500)
	results, err := h.queries.PendingReview(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, results, &response.Meta{Total: len(results), Limit: limit})
}

// SenderRouting returns the routing history of one sender domain.
func (h *TriageHandler) SenderRouting(c *fiber.Ctx) error {
	sender := strings.TrimSpace(c.Params("sender"))
	counts, err := h.queries.SenderRouting(c.UserContext(), sender)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"sender_domain": strings.ToLower(sender), "routes": counts})
}
