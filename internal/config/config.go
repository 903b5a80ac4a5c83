package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"toolgate/pkg/models"
)

// Config is the full configuration surface of the governance layer. It is
// loaded once at startup through viper (config file plus TOOLGATE_*
// environment overrides) and validated before anything is wired up.
type Config struct {
	Debug bool `mapstructure:"debug"`

	Routing   RoutingConfig         `mapstructure:"routing"`
	Gateway   GatewayConfig         `mapstructure:"gateway"`
	Embedding EmbeddingConfig       `mapstructure:"embedding"`
	Secrets   SecretsConfig         `mapstructure:"secrets"`
	BlobStore BlobStoreConfig       `mapstructure:"blobstore"`
	Telemetry TelemetryConfig       `mapstructure:"telemetry"`
	Tools     map[string]ToolConfig `mapstructure:"tools"`
}

// RoutingConfig tunes the selector.
type RoutingConfig struct {
	// TopK caps the ranked portion of a selection; the core set rides on
	// top of it.
	TopK int `mapstructure:"top_k"`
	// Threshold is the minimum final score an entry needs to rank at all.
	Threshold float64 `mapstructure:"threshold"`
	// AmbiguityDelta is the score band within which a cross-domain top
	// pair is flagged as ambiguous.
	AmbiguityDelta float64 `mapstructure:"ambiguity_delta"`
	// DomainBoost multiplies scores of entries sharing the last-used
	// domain; DomainPenalty multiplies everything else once a domain is
	// established.
	DomainBoost   float64 `mapstructure:"domain_boost"`
	DomainPenalty float64 `mapstructure:"domain_penalty"`
	// CoreTools are always included in a selection regardless of score.
	CoreTools []string `mapstructure:"core_tools"`
	// AmbiguityPolicy is what the consumer should do with an ambiguous
	// selection: "advise" keeps the ranked list as-is with a flag,
	// "disambiguate" asks it to surface a clarifying question.
	AmbiguityPolicy string `mapstructure:"ambiguity_policy"`
	// HistoryWindow is how many prior turns get folded into the query
	// embedding text.
	HistoryWindow int `mapstructure:"history_window"`
}

// GatewayConfig tunes the invocation gateway.
type GatewayConfig struct {
	// LargeResponseThreshold is the serialized-result size in bytes above
	// which a result is offloaded to blob storage. It should track the
	// downstream model's context budget: lower it for small local models.
	LargeResponseThreshold int `mapstructure:"large_response_threshold"`
	// DefaultTimeout bounds dispatch for tools without their own timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// PreviewItems is how many leading records of an offloaded array
	// survive inline as the schema preview.
	PreviewItems int `mapstructure:"preview_items"`
	// CacheSize bounds the number of live cache entries per tool.
	CacheSize int `mapstructure:"cache_size"`
	// SweepSchedule is a cron expression for the background purge of
	// expired cache entries. Empty disables the sweeper; expiry is
	// checked lazily on read either way.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	APIKey     string `mapstructure:"api_key"`
}

// SecretsConfig points at the credential store.
type SecretsConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// BlobStoreConfig points at the offload storage directory.
type BlobStoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig configures trace export. An empty endpoint disables
// export without touching the in-process spans.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// ToolConfig is the per-tool policy block. Tool ids used as map keys are
// cross-checked against the live catalog by Validate.
type ToolConfig struct {
	// CacheTTL in seconds; 0 means never cache (live results only).
	CacheTTL int `mapstructure:"cache_ttl"`
	// RateLimit tokens refill per second; Burst is bucket capacity.
	// A zero RateLimit leaves the tool unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
	// Timeout overrides the gateway default for this tool's dispatch.
	Timeout time.Duration `mapstructure:"timeout"`
	// SecretKeys are the reserved argument names that receive injected
	// credentials. They are excluded from cache keys.
	SecretKeys []string `mapstructure:"secret_keys"`
}

// TTL returns the tool's cache TTL as a duration.
func (t ToolConfig) TTL() time.Duration {
	return time.Duration(t.CacheTTL) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("routing.top_k", 6)
	v.SetDefault("routing.threshold", 0.15)
	v.SetDefault("routing.ambiguity_delta", 0.05)
	v.SetDefault("routing.domain_boost", 1.15)
	v.SetDefault("routing.domain_penalty", 0.7)
	v.SetDefault("routing.ambiguity_policy", "advise")
	v.SetDefault("routing.history_window", 3)
	v.SetDefault("gateway.large_response_threshold", 32*1024)
	v.SetDefault("gateway.default_timeout", 30*time.Second)
	v.SetDefault("gateway.preview_items", 2)
	v.SetDefault("gateway.cache_size", 256)
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("secrets.database_url", "toolgate-secrets.db")
	v.SetDefault("telemetry.service_name", "toolgate")
	v.SetDefault("blobstore.dir", "toolgate-offload")
}

// Load reads configuration from the given file (optional) plus TOOLGATE_*
// environment variables, applies defaults, and unmarshals into Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("toolgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()
	v.SetEnvPrefix("TOOLGATE")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check validates the internally consistent parts of the configuration,
// the ones that need no catalog.
func (c *Config) check() error {
	if c.Routing.TopK <= 0 {
		return fmt.Errorf("routing.top_k must be positive, got %d", c.Routing.TopK)
	}
	if c.Routing.DomainBoost < 1 {
		return fmt.Errorf("routing.domain_boost must be >= 1, got %v", c.Routing.DomainBoost)
	}
	if c.Routing.DomainPenalty <= 0 || c.Routing.DomainPenalty > 1 {
		return fmt.Errorf("routing.domain_penalty must be in (0, 1], got %v", c.Routing.DomainPenalty)
	}
	if c.Routing.AmbiguityDelta < 0 {
		return fmt.Errorf("routing.ambiguity_delta must not be negative")
	}
	switch c.Routing.AmbiguityPolicy {
	case "advise", "disambiguate":
	default:
		return fmt.Errorf("routing.ambiguity_policy must be \"advise\" or \"disambiguate\", got %q", c.Routing.AmbiguityPolicy)
	}
	if c.Gateway.LargeResponseThreshold <= 0 {
		return fmt.Errorf("gateway.large_response_threshold must be positive")
	}
	for id, tc := range c.Tools {
		if tc.CacheTTL < 0 {
			return fmt.Errorf("tools.%s.cache_ttl must not be negative", id)
		}
		if tc.RateLimit < 0 {
			return fmt.Errorf("tools.%s.rate_limit must not be negative", id)
		}
		if tc.RateLimit > 0 && tc.Burst <= 0 {
			return fmt.Errorf("tools.%s.burst must be positive when rate_limit is set", id)
		}
	}
	return nil
}

// CatalogView is the subset of the catalog index Validate needs, kept as
// an interface so config does not depend on the catalog package.
type CatalogView interface {
	Get(id string) (models.CatalogEntry, bool)
}

// Validate cross-checks tool-id references against the live catalog so a
// typo in a config key fails at startup instead of silently configuring
// nothing.
func (c *Config) Validate(cat CatalogView) error {
	for _, id := range c.Routing.CoreTools {
		if _, ok := cat.Get(id); !ok {
			return fmt.Errorf("routing.core_tools references unknown entry %q", id)
		}
	}
	for id := range c.Tools {
		if _, ok := cat.Get(id); !ok {
			return fmt.Errorf("tools config references unknown tool %q", id)
		}
	}
	return nil
}

// ToolConfigFor returns the policy block for a tool, falling back to the
// zero value (no cache, no rate limit, gateway default timeout).
func (c *Config) ToolConfigFor(id string) ToolConfig {
	return c.Tools[id]
}
