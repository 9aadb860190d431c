package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/response"
)

// LabelHandler records reviewer labels as training examples.
type LabelHandler struct {
	triage  in.TriageService
	queries in.TriageQueries
}

// NewLabelHandler creates a new LabelHandler.
func NewLabelHandler(triage in.TriageService, queries in.TriageQueries) *LabelHandler {
	return &LabelHandler{triage: triage, queries: queries}
}

// Register registers label routes.
func (h *LabelHandler) Register(app fiber.Router) {
	labels := app.Group("/labels")
	labels.Post("/", h.RecordLabel)
	labels.Get("/stats", h.Stats)
	labels.Get("/:email_id", h.GetLabel)
}

// recordLabelRequest names the label by category name or id.
type recordLabelRequest struct {
	Email     *domain.RawEmail `json:"email"`
	Label     string           `json:"label"`
	LabeledBy string           `json:"labeled_by"`
}

func parseLabel(s string) (domain.Category, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.Atoi(s); err == nil {
		return domain.CategoryFromID(id)
	}
	return domain.ParseCategory(s)
}

// RecordLabel stores a human-confirmed label. The reviewer defaults to the
// token subject.
func (h *LabelHandler) RecordLabel(c *fiber.Ctx) error {
	var req recordLabelRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Label == "" {
		return apperr.MissingField("label")
	}
	label, err := parseLabel(req.Label)
	if err != nil {
		return apperr.InvalidInput("label", "unknown category "+req.Label)
	}

	labeledBy := req.LabeledBy
	if labeledBy == "" {
		labeledBy = subject(c)
	}

	example, err := h.triage.RecordLabel(c.UserContext(), &in.RecordLabelRequest{
		Email:     req.Email,
		Label:     label,
		LabeledBy: labeledBy,
	})
	if err != nil {
		return err
	}
	return response.Created(c, example)
}

// Stats returns the number of training examples per category name.
func (h *LabelHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.queries.LabelCounts(c.UserContext())
	if err != nil {
		return err
	}

	byName := make(map[string]int64, len(counts))
	var total int64
	for _, category := range domain.Categories() {
		byName[category.String()] = counts[category]
		total += counts[category]
	}
	return response.OK(c, fiber.Map{"labels": byName, "total": total})
}

// GetLabel returns the training example recorded for one email.
func (h *LabelHandler) GetLabel(c *fiber.Ctx) error {
	example, err := h.queries.GetLabel(c.UserContext(), c.Params("email_id"))
	if err != nil {
		return err
	}
	return response.OK(c, example)
}
