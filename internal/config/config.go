// Package config loads gazetteer configuration from config files,
// environment variables, and .env files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/resolver"
	"github.com/placelore/gazetteer/pkg/scoring"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Output  string

	// Config file
	ConfigFile string

	// Store configuration
	StoreBackend string // "sqlite" or "memory"
	StorePath    string

	// Source configuration
	ProfilesPath string // optional YAML overriding source profiles

	// Critical attributes never auto-applied. Empty means the default set.
	CriticalAttributes []string

	// Scoring configuration
	StalenessHorizon time.Duration
	RecencyFloor     float64

	// Resolution configuration
	ConflictPenalty    float64
	AutoApplyThreshold float64

	// Ingestion configuration
	FetchRetries int
	RetryBackoff time.Duration
	ScoreWorkers int

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load builds configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (GAZETTEER_ prefix)
// 3. .env files
// 4. Config file (~/.gazetteer.yaml)
// 5. Defaults
func Load() (*Config, error) {
	loadEnvFiles()

	viper.SetEnvPrefix("GAZETTEER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".gazetteer")
		}
	}

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),
		Output:  viper.GetString("output"),

		ConfigFile: viper.ConfigFileUsed(),

		StoreBackend: viper.GetString("store.backend"),
		StorePath:    viper.GetString("store.path"),

		ProfilesPath:       viper.GetString("sources.profiles"),
		CriticalAttributes: viper.GetStringSlice("critical_attributes"),

		StalenessHorizon: viper.GetDuration("scoring.staleness_horizon"),
		RecencyFloor:     viper.GetFloat64("scoring.recency_floor"),

		ConflictPenalty:    viper.GetFloat64("resolution.conflict_penalty"),
		AutoApplyThreshold: viper.GetFloat64("resolution.auto_apply_threshold"),

		FetchRetries: viper.GetInt("ingest.fetch_retries"),
		RetryBackoff: viper.GetDuration("ingest.retry_backoff"),
		ScoreWorkers: viper.GetInt("ingest.score_workers"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	if config.StoreBackend == "" {
		config.StoreBackend = "sqlite"
	}
	if config.StorePath == "" {
		config.StorePath = "gazetteer.db"
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, output string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if output != "" {
		c.Output = output
	}
}

// Critical returns the configured critical attribute set, falling back
// to the built-in default when none is configured.
func (c *Config) Critical() map[gazetteer.AttributeType]bool {
	if len(c.CriticalAttributes) == 0 {
		return gazetteer.DefaultCriticalAttributes()
	}
	critical := make(map[gazetteer.AttributeType]bool, len(c.CriticalAttributes))
	for _, attr := range c.CriticalAttributes {
		critical[gazetteer.AttributeType(attr)] = true
	}
	return critical
}

// ScoringConfig builds the scorer configuration. Zero-valued fields are
// filled with defaults by the scorer itself.
func (c *Config) ScoringConfig() scoring.Config {
	return scoring.Config{
		StalenessHorizon: c.StalenessHorizon,
		RecencyFloor:     c.RecencyFloor,
	}
}

// ResolverConfig builds the resolver configuration. Zero-valued fields
// are filled with defaults by the resolver itself.
func (c *Config) ResolverConfig() resolver.Config {
	cfg := resolver.Config{
		ConflictPenalty:    c.ConflictPenalty,
		AutoApplyThreshold: c.AutoApplyThreshold,
	}
	if len(c.CriticalAttributes) > 0 {
		cfg.AlwaysReview = c.Critical()
	}
	return cfg
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	envFiles := []string{
		".env",
		".env.local",
	}
	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
