package http

import (
	"github.com/gofiber/fiber/v2"

	"triage_worker/core/domain"
	"triage_worker/pkg/response"
)

// CategoryHandler lists the category registry.
type CategoryHandler struct {
	priority []domain.Category
}

// NewCategoryHandler creates a new CategoryHandler. priority is the rule
// evaluation order, highest first.
func NewCategoryHandler(priority []domain.Category) *CategoryHandler {
	return &CategoryHandler{priority: priority}
}

// Register registers category routes.
func (h *CategoryHandler) Register(app fiber.Router) {
	app.Get("/categories", h.ListCategories)
}

type categoryView struct {
	domain.CategoryMeta
	Priority int `json:"priority"` // 1 is evaluated first
}

// ListCategories returns every category with its pinned id.
func (h *CategoryHandler) ListCategories(c *fiber.Ctx) error {
	rank := make(map[domain.Category]int, len(h.priority))
	for i, category := range h.priority {
		rank[category] = i + 1
	}

	catalog := domain.CategoryCatalog()
	views := make([]categoryView, 0, len(catalog))
	for _, meta := range catalog {
		category, err := domain.CategoryFromID(meta.ID)
		if err != nil {
			return err
		}
		views = append(views, categoryView{CategoryMeta: meta, Priority: rank[category]})
	}
	return response.OKWithMeta(c, views, &response.Meta{Total: len(views)})
}
