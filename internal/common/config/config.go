// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Embedding   ProviderConfig    `mapstructure:"embedding"`
	Completion  ProviderConfig    `mapstructure:"completion"`
	Datasources DatasourcesConfig `mapstructure:"datasources"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Resilience  ResilienceConfig  `mapstructure:"resilience"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// --- Core App Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Port        int    `mapstructure:"port"`
}

// EngineConfig holds matching and gating settings for the retrieval engine.
type EngineConfig struct {
	TemplateLibraryPaths []string `mapstructure:"template_library_paths"`
	DomainConfigPath     string   `mapstructure:"domain_config_path"`
	TopK                 int      `mapstructure:"top_k"`
	ConfidenceThreshold  float64  `mapstructure:"confidence_threshold"`
	MinMargin            float64  `mapstructure:"min_margin"`
	MaxCandidateAttempts int      `mapstructure:"max_candidate_attempts"`
}

// ProviderConfig describes an OpenAI-compatible remote model endpoint.
type ProviderConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

type DatasourcesConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	HTTP          HTTPSourceConfig    `mapstructure:"http"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// HTTPSourceConfig describes the REST backend used by http-kind templates.
type HTTPSourceConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout int               `mapstructure:"timeout"` // milliseconds
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field.
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// CacheConfig holds settings for the redis embedding cache.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // seconds, 0 means no expiry
}

// ResilienceConfig holds the fault-tolerance policy applied to every
// datasource execution.
type ResilienceConfig struct {
	CallTimeout      int `mapstructure:"call_timeout"` // milliseconds
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffBase      int `mapstructure:"backoff_base"` // milliseconds
	BreakerThreshold int `mapstructure:"breaker_threshold"`
	BreakerCooldown  int `mapstructure:"breaker_cooldown"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
