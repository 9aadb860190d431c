package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_worker/pkg/apperr"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 0.50, cfg.ResolverMinConfidence)
	assert.Equal(t, 0.25, cfg.ResolverAmbiguityMargin)
	assert.Equal(t, 5*time.Second, cfg.ScorerTimeout)
	assert.Equal(t, "triage:inbound", cfg.StreamInbound)
	assert.NotEmpty(t, cfg.ConsumerName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("RESOLVER_AMBIGUITY_MARGIN", " 0.1 ")
	t.Setenv("SCORER_TIMEOUT_MS", "750")
	t.Setenv("BATCH_WORKERS", "not-a-number")
	t.Setenv("CONSUMER_NAME", "worker-a")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 0.1, cfg.ResolverAmbiguityMargin)
	assert.Equal(t, 750*time.Millisecond, cfg.ScorerTimeout)
	assert.Equal(t, 8, cfg.BatchWorkers)
	assert.Equal(t, "worker-a", cfg.ConsumerName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "confidence zero", key: "RESOLVER_MIN_CONFIDENCE", value: "0"},
		{name: "confidence above one", key: "RESOLVER_MIN_CONFIDENCE", value: "1.5"},
		{name: "negative margin", key: "RESOLVER_AMBIGUITY_MARGIN", value: "-0.1"},
		{name: "no batch workers", key: "BATCH_WORKERS", value: "0"},
		{name: "negative rate limit", key: "RATE_LIMIT_BURST", value: "-1"},
		{name: "neo4j without password", key: "NEO4J_URL", value: "neo4j://localhost:7687"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.True(t, apperr.IsCode(err, apperr.CodeConfigError), "got %v", err)
		})
	}
}
