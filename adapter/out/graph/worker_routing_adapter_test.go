package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"

	"triage_worker/core/domain"
)

func TestRoutingQuery(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("decided goes to category", func(t *testing.T) {
		query, params := routingQuery(&domain.TriageResult{
			EmailID:      "e-1",
			SenderDomain: "example.com",
			Verdict:      domain.Decided(domain.CategoryClaims),
			CreatedAt:    at,
		})

		assert.Contains(t, query, "ROUTED_TO")
		assert.Equal(t, "example.com", params["sender"])
		assert.Equal(t, int64(1), params["categoryID"])
		assert.Equal(t, "CLAIMS", params["categoryName"])
		assert.Equal(t, at.Unix(), params["at"])
	})

	t.Run("review goes to queue", func(t *testing.T) {
		query, params := routingQuery(&domain.TriageResult{
			EmailID:   "e-2",
			Verdict:   domain.NeedsReview(""),
			CreatedAt: at,
		})

		assert.Contains(t, query, "SENT_FOR_REVIEW")
		assert.Equal(t, unknownSender, params["sender"])
		assert.Equal(t, reviewTarget, params["queue"])
		assert.Equal(t, domain.ReasonNoRuleMatched, params["reason"])
	})

	t.Run("mixed case sender is stored lower case", func(t *testing.T) {
		_, params := routingQuery(&domain.TriageResult{
			EmailID:      "e-3",
			SenderDomain: " Claims.Acme.COM ",
			Verdict:      domain.Decided(domain.CategoryClaims),
			CreatedAt:    at,
		})

		assert.Equal(t, "claims.acme.com", params["sender"])
	})
}

func TestSenderKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com", want: "example.com"},
		{in: "Claims.Acme.COM", want: "claims.acme.com"},
		{in: "  Mail.Example.com\t", want: "mail.example.com"},
		{in: "", want: unknownSender},
		{in: "   ", want: unknownSender},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, senderKey(tt.in))
		})
	}
}

func TestRecordValues(t *testing.T) {
	record := &neo4j.Record{
		Keys:   []string{"target", "count", "missing"},
		Values: []any{"CLAIMS", int64(7), nil},
	}

	assert.Equal(t, "CLAIMS", getStringValue(record, "target"))
	assert.Equal(t, int64(7), getInt64Value(record, "count"))
	assert.Equal(t, "", getStringValue(record, "missing"))
	assert.Equal(t, int64(0), getInt64Value(record, "absent"))
}
