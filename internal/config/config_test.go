package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Routing.TopK)
	assert.Equal(t, 0.15, cfg.Routing.Threshold)
	assert.Equal(t, "advise", cfg.Routing.AmbiguityPolicy)
	assert.Equal(t, 32*1024, cfg.Gateway.LargeResponseThreshold)
	assert.Equal(t, 30*time.Second, cfg.Gateway.DefaultTimeout)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
routing:
  top_k: 10
  core_tools: ["clock.now"]
gateway:
  large_response_threshold: 1024
tools:
  weather.get:
    cache_ttl: 900
    rate_limit: 2
    burst: 5
    timeout: 10s
    secret_keys: ["api_key"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Routing.TopK)
	assert.Equal(t, []string{"clock.now"}, cfg.Routing.CoreTools)
	assert.Equal(t, 1024, cfg.Gateway.LargeResponseThreshold)

	tc := cfg.ToolConfigFor("weather.get")
	assert.Equal(t, 15*time.Minute, tc.TTL())
	assert.Equal(t, 2.0, tc.RateLimit)
	assert.Equal(t, 5, tc.Burst)
	assert.Equal(t, 10*time.Second, tc.Timeout)
	assert.Equal(t, []string{"api_key"}, tc.SecretKeys)

	// Unconfigured tools fall back to the zero policy.
	assert.Zero(t, cfg.ToolConfigFor("light.turn_on").TTL())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestCheckRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero top_k", "routing:\n  top_k: 0\n"},
		{"boost below one", "routing:\n  domain_boost: 0.5\n"},
		{"penalty above one", "routing:\n  domain_penalty: 1.5\n"},
		{"unknown ambiguity policy", "routing:\n  ambiguity_policy: guess\n"},
		{"negative cache ttl", "tools:\n  a.b:\n    cache_ttl: -1\n"},
		{"rate limit without burst", "tools:\n  a.b:\n    rate_limit: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

type stubCatalog map[string]models.CatalogEntry

func (s stubCatalog) Get(id string) (models.CatalogEntry, bool) {
	e, ok := s[id]
	return e, ok
}

func TestValidateCrossChecksCatalog(t *testing.T) {
	cat := stubCatalog{
		"clock.now":   &models.ToolDescriptor{ID: "clock.now"},
		"weather.get": &models.ToolDescriptor{ID: "weather.get"},
	}

	cfg := &Config{
		Routing: RoutingConfig{CoreTools: []string{"clock.now"}},
		Tools:   map[string]ToolConfig{"weather.get": {}},
	}
	assert.NoError(t, cfg.Validate(cat))

	cfg.Routing.CoreTools = []string{"clock.nope"}
	assert.ErrorContains(t, cfg.Validate(cat), "clock.nope")

	cfg.Routing.CoreTools = nil
	cfg.Tools = map[string]ToolConfig{"weather.nope": {}}
	assert.ErrorContains(t, cfg.Validate(cat), "weather.nope")
}
