package httputil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_UsesConfig(t *testing.T) {
	cfg := ScorerClientConfig()
	client := NewClient(cfg)

	assert.Equal(t, cfg.ResponseTimeout, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, cfg.MaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.Equal(t, cfg.MaxConnsPerHost, transport.MaxConnsPerHost)
}

func TestNewClient_NilConfig(t *testing.T) {
	client := NewClient(nil)
	assert.Equal(t, ScorerClientConfig().ResponseTimeout, client.Timeout)
}
