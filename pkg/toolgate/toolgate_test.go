package toolgate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/config"
	"toolgate/internal/secrets"
	"toolgate/pkg/models"
)

type echoTransport struct{}

func (echoTransport) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("echo: " + req.Params.Name), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Routing: config.RoutingConfig{
			TopK:            6,
			Threshold:       0.05,
			AmbiguityDelta:  0.05,
			DomainBoost:     1.15,
			DomainPenalty:   0.7,
			AmbiguityPolicy: "advise",
			HistoryWindow:   3,
			CoreTools:       []string{"clock.now"},
		},
		Gateway: config.GatewayConfig{
			LargeResponseThreshold: 32 * 1024,
			DefaultTimeout:         5 * time.Second,
			PreviewItems:           2,
			CacheSize:              16,
		},
		Embedding: config.EmbeddingConfig{Provider: "hash", Dimensions: 64},
		Secrets:   config.SecretsConfig{DatabaseURL: filepath.Join(dir, "secrets.db")},
		BlobStore: config.BlobStoreConfig{Dir: filepath.Join(dir, "blobs")},
	}
}

func TestRuntimeEndToEnd(t *testing.T) {
	ctx := context.Background()
	key, err := secrets.GenerateRandomKey()
	require.NoError(t, err)

	rt, err := New(ctx, testConfig(t), echoTransport{}, Options{SecretsKey: key})
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.NotNil(t, rt.Secrets())

	require.NoError(t, rt.Catalog().Register(ctx, &models.ToolDescriptor{
		ID:           "clock.now",
		Domain:       "time",
		Description:  "current date and time",
		RequiredRole: models.RoleUser,
	}))
	require.NoError(t, rt.Catalog().Register(ctx, &models.ToolDescriptor{
		ID:           "weather.get",
		Domain:       "weather",
		Description:  "current weather forecast temperature for a city",
		RequiredRole: models.RoleUser,
	}))

	ranked, err := rt.Selector().Select(ctx, "current weather forecast for the city of oslo", models.RoleUser, nil)
	require.NoError(t, err)
	assert.True(t, ranked.Contains("weather.get"))
	assert.True(t, ranked.Contains("clock.now"), "core tool rides on every selection")

	caller := models.CallerIdentity{UserID: "alice", Role: models.RoleUser}
	res, err := rt.Gateway().Invoke(ctx, "weather.get", map[string]any{"city": "oslo"}, caller)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusOK, res.Status)
	assert.Equal(t, "echo: weather.get", res.Content)
}

func TestRuntimeWithoutSecretsKey(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TOOLGATE_SECRETS_KEY", "")

	cfg := testConfig(t)
	rt, err := New(ctx, cfg, echoTransport{}, Options{})
	require.NoError(t, err)
	defer rt.Close(ctx)

	// No store key means no credential store; calls still run.
	assert.Nil(t, rt.Secrets())

	require.NoError(t, rt.Catalog().Register(ctx, &models.ToolDescriptor{
		ID: "weather.get", Domain: "weather", Description: "forecast", RequiredRole: models.RoleUser,
	}))
	res, err := rt.Gateway().Invoke(ctx, "weather.get", nil, models.CallerIdentity{UserID: "alice", Role: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusOK, res.Status)
}

func TestDispatchFeedsDomainAffinity(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, testConfig(t), echoTransport{}, Options{})
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.NoError(t, rt.Catalog().Register(ctx, &models.ToolDescriptor{
		ID: "light.turn_on", Domain: "home", Description: "turn on a light", RequiredRole: models.RoleUser,
	}))
	require.NoError(t, rt.Catalog().Register(ctx, &models.ToolDescriptor{
		ID: "light.turn_off", Domain: "home", Description: "turn off a light", RequiredRole: models.RoleUser,
	}))

	_, err = rt.Gateway().Invoke(ctx, "light.turn_on", nil, models.CallerIdentity{UserID: "alice", Role: models.RoleUser})
	require.NoError(t, err)

	// The dispatch hook recorded the home domain; a follow-up in the same
	// domain ranks both lights.
	ranked, err := rt.Selector().Select(ctx, "turn off the light", models.RoleUser, nil)
	require.NoError(t, err)
	assert.True(t, ranked.Contains("light.turn_off"))
}
