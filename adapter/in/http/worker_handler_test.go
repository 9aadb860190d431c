package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/service/classification"
	"triage_worker/core/service/preprocess"
	"triage_worker/infra/middleware"
	"triage_worker/pkg/apperr"
	"triage_worker/pkg/metrics"
)

// =============================================================================
// Fakes
// =============================================================================

type stubTriage struct {
	labels  []*in.RecordLabelRequest
	queued  []*domain.RawEmail
	pending []*domain.TriageResult
	counts  map[domain.Category]int64
}

func (s *stubTriage) Triage(ctx context.Context, email *domain.RawEmail) (*domain.TriageResult, error) {
	if email.ID == "fail" {
		return nil, apperr.DatabaseError("save triage result", errors.New("down"))
	}
	return &domain.TriageResult{
		ID:      uuid.New(),
		EmailID: email.ID,
		Verdict: domain.Decided(domain.CategoryClaims),
	}, nil
}

func (s *stubTriage) TriageBatch(ctx context.Context, emails []*domain.RawEmail) ([]*domain.TriageResult, error) {
	if len(emails) > 2 {
		return nil, apperr.BatchTooLarge(len(emails), 2)
	}
	results := make([]*domain.TriageResult, len(emails))
	batchErr := &domain.BatchError{}
	for i, email := range emails {
		r, err := s.Triage(ctx, email)
		if err != nil {
			batchErr.Failed = append(batchErr.Failed, domain.ItemError{Index: i, Err: err})
			continue
		}
		results[i] = r
	}
	if len(batchErr.Failed) > 0 {
		return results, batchErr
	}
	return results, nil
}

func (s *stubTriage) RecordLabel(ctx context.Context, req *in.RecordLabelRequest) (*domain.TrainingExample, error) {
	s.labels = append(s.labels, req)
	return &domain.TrainingExample{EmailID: req.Email.ID, Label: req.Label, LabelName: req.Label.String(), LabeledBy: req.LabeledBy}, nil
}

func (s *stubTriage) GetResult(ctx context.Context, id uuid.UUID) (*domain.TriageResult, error) {
	return nil, apperr.NotFound("triage result")
}

func (s *stubTriage) PendingReview(ctx context.Context, limit int) ([]*domain.TriageResult, error) {
	return s.pending, nil
}

func (s *stubTriage) SenderRouting(ctx context.Context, sender string) ([]domain.RoutingCount, error) {
	return []domain.RoutingCount{{Target: "CLAIMS", Count: 2}}, nil
}

func (s *stubTriage) LabelCounts(ctx context.Context) (map[domain.Category]int64, error) {
	return s.counts, nil
}

func (s *stubTriage) GetLabel(ctx context.Context, emailID string) (*domain.TrainingExample, error) {
	if emailID != "e-1" {
		return nil, apperr.NotFound("training example")
	}
	return &domain.TrainingExample{EmailID: emailID, Label: domain.CategoryClaims, LabelName: "CLAIMS"}, nil
}

func (s *stubTriage) Enqueue(ctx context.Context, email *domain.RawEmail) (string, error) {
	s.queued = append(s.queued, email)
	return "1700000000000-0", nil
}

// =============================================================================
// Helpers
// =============================================================================

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestApp(t *testing.T, stub *stubTriage) *fiber.App {
	t.Helper()
	resolver, err := classification.NewDefaultLabelResolver()
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(middleware.RequestID())
	NewHealthHandler(map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
	}).Register(app)

	v1 := app.Group("/v1")
	NewTriageHandler(preprocess.NewNormalizer(), resolver, stub, stub).Register(v1)
	NewLabelHandler(stub, stub).Register(v1)
	NewCategoryHandler(classification.PriorityOrder()).Register(v1)
	NewMetricsHandler(metrics.NewTriageMetrics(10), map[string]StatsSource{
		"postgres_pool": func() any { return fiber.Map{"total_conns": 1} },
	}).Register(v1)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

// =============================================================================
// Tests
// =============================================================================

func TestNormalize(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	status, env := do(t, app, "POST", "/v1/normalize", `{"subject":"Claim","body":"Call 555-123-4567"}`)
	require.Equal(t, 200, status)

	var got normalizeResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, domain.ModelInputTemplateVersion, got.TemplateVersion)
	assert.Contains(t, string(got.Input), "Subject: claim\n")
	assert.Contains(t, string(got.Input), "call [amount]-[amount]-[amount]")
	assert.Contains(t, string(got.Input), "Sender: unknown")
}

func TestResolve(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	tests := []struct {
		name    string
		body    string
		status  int
		decided bool
	}{
		{name: "claims score", body: `{"scores":{"CLAIMS":0.9}}`, status: 200, decided: true},
		{name: "no evidence", body: `{}`, status: 200},
		{name: "unknown category is dropped", body: `{"scores":{"TRAVEL":0.9}}`, status: 200},
		{name: "unknown category next to claims", body: `{"scores":{"TRAVEL":0.9,"CLAIMS":0.8}}`, status: 200, decided: true},
		{name: "bad json", body: `{`, status: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, "POST", "/v1/resolve", tt.body)
			require.Equal(t, tt.status, status)
			if status != 200 {
				return
			}
			var verdict domain.LabelVerdict
			require.NoError(t, json.Unmarshal(env.Data, &verdict))
			assert.Equal(t, tt.decided, verdict.IsDecided())
		})
	}
}

func TestTriage(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	status, env := do(t, app, "POST", "/v1/triage", `{"id":"e-1","subject":"Accident claim"}`)
	require.Equal(t, 200, status)
	var result domain.TriageResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "e-1", result.EmailID)

	status, env = do(t, app, "POST", "/v1/triage", `{"id":"fail"}`)
	assert.Equal(t, 500, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeDatabaseError, env.Error.Code)

	status, _ = do(t, app, "POST", "/v1/triage", "")
	assert.Equal(t, 400, status)
}

func TestTriageBatch(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	status, env := do(t, app, "POST", "/v1/triage/batch", `{"emails":[{"id":"a"},{"id":"fail"}]}`)
	require.Equal(t, 200, status)

	var got batchResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Results, 2)
	assert.Equal(t, "a", got.Results[0].EmailID)
	assert.Nil(t, got.Results[1])
	require.Len(t, got.Failed, 1)
	assert.Equal(t, 1, got.Failed[0].Index)
	assert.Equal(t, apperr.CodeDatabaseError, got.Failed[0].Code)

	status, env = do(t, app, "POST", "/v1/triage/batch", `{"emails":[{},{},{}]}`)
	assert.Equal(t, 413, status)
	assert.Equal(t, apperr.CodeBatchTooBig, env.Error.Code)
}

func TestEnqueue(t *testing.T) {
	stub := &stubTriage{}
	app := newTestApp(t, stub)

	status, env := do(t, app, "POST", "/v1/triage/async", `{"id":"e-9","subject":"refund"}`)
	require.Equal(t, 202, status)
	assert.Contains(t, string(env.Data), "1700000000000-0")
	require.Len(t, stub.queued, 1)
	assert.Equal(t, "e-9", stub.queued[0].ID)
}

func TestAuditQueries(t *testing.T) {
	stub := &stubTriage{pending: []*domain.TriageResult{
		{ID: uuid.New(), EmailID: "r-1", Verdict: domain.NeedsReview("no rule matched")},
	}}
	app := newTestApp(t, stub)

	status, _ := do(t, app, "GET", "/v1/verdicts/not-a-uuid", "")
	assert.Equal(t, 400, status)

	status, env := do(t, app, "GET", "/v1/verdicts/"+uuid.NewString(), "")
	assert.Equal(t, 404, status)
	assert.Equal(t, apperr.CodeNotFound, env.Error.Code)

	status, env = do(t, app, "GET", "/v1/reviews/pending?limit=5", "")
	require.Equal(t, 200, status)
	var pending []*domain.TriageResult
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "no rule matched", pending[0].Verdict.Reason())

	status, env = do(t, app, "GET", "/v1/routing/Example.com", "")
	require.Equal(t, 200, status)
	assert.Contains(t, string(env.Data), `"sender_domain":"example.com"`)
}

func TestRecordLabel(t *testing.T) {
	stub := &stubTriage{}
	app := newTestApp(t, stub)

	tests := []struct {
		name   string
		body   string
		status int
		label  domain.Category
	}{
		{name: "by name", body: `{"email":{"id":"e-1"},"label":"claims","labeled_by":"ana"}`, status: 201, label: domain.CategoryClaims},
		{name: "by id", body: `{"email":{"id":"e-2"},"label":"2"}`, status: 201, label: domain.CategoryAccountsBilling},
		{name: "missing", body: `{"email":{"id":"e-3"}}`, status: 400},
		{name: "unknown", body: `{"email":{"id":"e-4"},"label":"TRAVEL"}`, status: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(stub.labels)
			status, _ := do(t, app, "POST", "/v1/labels", tt.body)
			require.Equal(t, tt.status, status)
			if status == 201 {
				require.Len(t, stub.labels, before+1)
				assert.Equal(t, tt.label, stub.labels[before].Label)
			}
		})
	}
}

func TestLabelStats(t *testing.T) {
	app := newTestApp(t, &stubTriage{counts: map[domain.Category]int64{domain.CategoryClaims: 4}})

	status, env := do(t, app, "GET", "/v1/labels/stats", "")
	require.Equal(t, 200, status)

	var got struct {
		Labels map[string]int64 `json:"labels"`
		Total  int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, int64(4), got.Total)
	assert.Equal(t, int64(4), got.Labels["CLAIMS"])
	assert.Len(t, got.Labels, len(domain.Categories()))
}

func TestListCategories(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	status, env := do(t, app, "GET", "/v1/categories", "")
	require.Equal(t, 200, status)

	var views []categoryView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 4)
	for _, v := range views {
		if v.Name == "CLAIMS" {
			assert.Equal(t, 1, v.Priority)
		}
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	for _, path := range []string{"/health", "/ready"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode, path)
	}

	failing := fiber.New()
	NewHealthHandler(map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	}).Register(failing)
	resp, err := failing.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestGetLabel(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	status, env := do(t, app, "GET", "/v1/labels/e-1", "")
	require.Equal(t, 200, status)
	var example domain.TrainingExample
	require.NoError(t, json.Unmarshal(env.Data, &example))
	assert.Equal(t, "CLAIMS", example.LabelName)

	status, env = do(t, app, "GET", "/v1/labels/unknown", "")
	assert.Equal(t, 404, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeNotFound, env.Error.Code)
}

func TestMetrics(t *testing.T) {
	app := newTestApp(t, &stubTriage{})

	status, env := do(t, app, "GET", "/v1/metrics", "")
	require.Equal(t, 200, status)

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Contains(t, data, "triage")
	assert.Contains(t, data, "postgres_pool")
}
