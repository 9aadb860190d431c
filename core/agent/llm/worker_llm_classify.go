package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"triage_worker/core/domain"
	"triage_worker/pkg/logger"
)

// Completer is the chat completion surface the scorer needs.
type Completer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// =============================================================================
// Category Scorer
// =============================================================================

// CategoryScorer asks a chat model for one score per category. Calls go
// through a circuit breaker so a failing provider is skipped quickly and
// triage falls back to keyword evidence.
type CategoryScorer struct {
	completer Completer
	cb        *gobreaker.CircuitBreaker
	maxInput  int
}

// ScorerConfig holds scorer options.
type ScorerConfig struct {
	Name     string
	MaxInput int // bytes of canonical input sent to the model
}

func NewCategoryScorer(completer Completer, cfg ScorerConfig) *CategoryScorer {
	if cfg.Name == "" {
		cfg.Name = "llm-scorer"
	}
	if cfg.MaxInput <= 0 {
		cfg.MaxInput = 4000
	}

	cbSettings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &CategoryScorer{
		completer: completer,
		cb:        gobreaker.NewCircuitBreaker(cbSettings),
		maxInput:  cfg.MaxInput,
	}
}

// Name identifies the scorer in logs and results.
func (s *CategoryScorer) Name() string {
	return s.cb.Name()
}

// Open reports whether the breaker is rejecting calls.
func (s *CategoryScorer) Open() bool {
	return s.cb.State() == gobreaker.StateOpen
}

// Score returns a probability per category for the canonical input.
func (s *CategoryScorer) Score(ctx context.Context, input domain.CanonicalInput) (map[domain.Category]float64, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		resp, err := s.completer.CompleteWithSystem(ctx, scorerSystemPrompt(), truncateBody(string(input), s.maxInput))
		if err != nil {
			return nil, err
		}
		return parseScores(resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return out.(map[domain.Category]float64), nil
}

// ScoreResponse is the JSON shape the model is asked to produce.
type ScoreResponse struct {
	Scores map[string]float64 `json:"scores"`
}

func scorerSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify customer emails sent to an insurance company. ")
	b.WriteString("Give a probability between 0.0 and 1.0 for each category and respond with JSON only.\n\nCategories:\n")
	for _, meta := range domain.CategoryCatalog() {
		fmt.Fprintf(&b, "- %s: %s\n", meta.Name, meta.Description)
	}
	b.WriteString("\nRespond with this exact JSON format:\n{\"scores\": {")
	for i, c := range domain.Categories() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: 0.0", c.String())
	}
	b.WriteString("}}")
	return b.String()
}

// parseScores decodes a model answer. Unknown category names are an error
// so a drifting prompt is noticed rather than silently ignored.
func parseScores(resp string) (map[domain.Category]float64, error) {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var parsed ScoreResponse
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse score response: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("score response has no scores")
	}

	scores := make(map[domain.Category]float64, len(parsed.Scores))
	for name, score := range parsed.Scores {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("score response: %w", err)
		}
		scores[c] = score
	}
	return scores, nil
}

// truncateBody cuts body to at most maxLen bytes without splitting a rune.
func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
