// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like EMBEDDING_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Merge environment-specific overrides, ignore if not found.
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Datasources.Elasticsearch.URL == "" && len(cfg.Datasources.Elasticsearch.Addresses) > 0 {
		cfg.Datasources.Elasticsearch.URL = cfg.Datasources.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the nearest plausible location.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders inside string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the YAML left
// them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Embedding.APIKey == "" {
		if val := os.Getenv("EMBEDDING_API_KEY"); val != "" {
			cfg.Embedding.APIKey = val
		}
	}
	if cfg.Completion.APIKey == "" {
		if val := os.Getenv("COMPLETION_API_KEY"); val != "" {
			cfg.Completion.APIKey = val
		}
	}
	if cfg.Datasources.Postgres.Password == "" {
		if val := os.Getenv("POSTGRES_PASSWORD"); val != "" {
			cfg.Datasources.Postgres.Password = val
		}
	}
	if cfg.Cache.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Cache.Password = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "intent-gateway"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.App.Port <= 0 {
		cfg.App.Port = 8080
	}

	if cfg.Engine.TopK <= 0 {
		cfg.Engine.TopK = 5
	}
	if cfg.Engine.ConfidenceThreshold <= 0 {
		cfg.Engine.ConfidenceThreshold = 0.4
	}
	if cfg.Engine.MaxCandidateAttempts <= 0 {
		cfg.Engine.MaxCandidateAttempts = 3
	}

	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30000
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Completion.Timeout <= 0 {
		cfg.Completion.Timeout = 30000
	}

	if cfg.Datasources.Postgres.MaxConnections <= 0 {
		cfg.Datasources.Postgres.MaxConnections = 10
	}
	if cfg.Datasources.Postgres.MaxIdle <= 0 {
		cfg.Datasources.Postgres.MaxIdle = 5
	}
	if cfg.Datasources.Postgres.SSLMode == "" {
		cfg.Datasources.Postgres.SSLMode = "disable"
	}
	if cfg.Datasources.HTTP.Timeout <= 0 {
		cfg.Datasources.HTTP.Timeout = 10000
	}

	if cfg.Resilience.CallTimeout <= 0 {
		cfg.Resilience.CallTimeout = 10000
	}
	if cfg.Resilience.MaxRetries <= 0 {
		cfg.Resilience.MaxRetries = 3
	}
	if cfg.Resilience.BackoffBase <= 0 {
		cfg.Resilience.BackoffBase = 100
	}
	if cfg.Resilience.BreakerThreshold <= 0 {
		cfg.Resilience.BreakerThreshold = 5
	}
	if cfg.Resilience.BreakerCooldown <= 0 {
		cfg.Resilience.BreakerCooldown = 30000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.Engine.TemplateLibraryPaths) == 0 {
		return fmt.Errorf("engine.template_library_paths must not be empty")
	}
	if cfg.Engine.ConfidenceThreshold < 0 || cfg.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("engine.confidence_threshold must be in [0,1], got %f", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Engine.MinMargin < 0 || cfg.Engine.MinMargin > 1 {
		return fmt.Errorf("engine.min_margin must be in [0,1], got %f", cfg.Engine.MinMargin)
	}
	if cfg.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if cfg.Completion.BaseURL == "" {
		return fmt.Errorf("completion.base_url is required")
	}
	return nil
}
