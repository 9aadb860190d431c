package http

import (
	"github.com/gofiber/fiber/v2"

	"triage_worker/pkg/metrics"
	"triage_worker/pkg/response"
)

// StatsSource reports the current state of one resource, such as a pool.
type StatsSource func() any

// MetricsHandler exposes in-process triage counters.
type MetricsHandler struct {
	metrics *metrics.TriageMetrics
	sources map[string]StatsSource
}

func NewMetricsHandler(m *metrics.TriageMetrics, sources map[string]StatsSource) *MetricsHandler {
	return &MetricsHandler{metrics: m, sources: sources}
}

func (h *MetricsHandler) Register(app fiber.Router) {
	app.Get("/metrics", h.Get)
}

// Get returns verdict counts and latency percentiles since start, plus
// one entry per stats source.
func (h *MetricsHandler) Get(c *fiber.Ctx) error {
	out := fiber.Map{"triage": h.metrics.Snapshot()}
	for name, source := range h.sources {
		out[name] = source()
	}
	return response.OK(c, out)
}
