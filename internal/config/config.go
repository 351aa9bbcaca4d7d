// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/llm"
	"github.com/joho/godotenv"
)

// KPI modes.
const (
	KPIModeModel = "model"
	KPIModeLocal = "local"
)

type Config struct {
	Model    ModelConfig
	Ledger   LedgerConfig
	Artifact artifact.Options
	Notion   NotionConfig
	KPIMode  string
	LogLevel string
}

type ModelConfig struct {
	Name    string
	Timeout time.Duration
}

type LedgerConfig struct {
	Path string
}

// NotionConfig is only needed by the publish command.
type NotionConfig struct {
	Token      string
	DatabaseID string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional; plain environment variables work on their own.
	for _, envFile := range []string{".env", "../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	timeout, err := time.ParseDuration(getEnv("MODEL_TIMEOUT", "2m"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid MODEL_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Model: ModelConfig{
			Name:    getEnv("MODEL_NAME", llm.DefaultModelName),
			Timeout: timeout,
		},
		Ledger: LedgerConfig{
			Path: getEnv("LEDGER_PATH", "data/transactions.csv"),
		},
		Artifact: artifact.Options{
			Backend:   getEnv("ARTIFACT_BACKEND", artifact.BackendFile),
			Dir:       getEnv("OUTPUT_DIR", "outputs"),
			Bucket:    getEnv("GCS_BUCKET", ""),
			Prefix:    getEnv("GCS_PREFIX", ""),
			ProjectID: getEnv("BQ_PROJECT", ""),
			DatasetID: getEnv("BQ_DATASET", "finance"),
			TableID:   getEnv("BQ_TABLE", "report_artifacts"),
			Namespace: getEnv("ARTIFACT_NAMESPACE", "default"),
		},
		Notion: NotionConfig{
			Token:      getEnv("NOTION_TOKEN", ""),
			DatabaseID: getEnv("NOTION_DATABASE_ID", ""),
		},
		KPIMode:  strings.ToLower(getEnv("KPI_MODE", KPIModeModel)),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// GCS_URI=gs://bucket/prefix takes precedence over GCS_BUCKET/GCS_PREFIX.
	if uri := getEnv("GCS_URI", ""); uri != "" {
		bucket, prefix, err := artifact.ParseGCSURI(uri)
		if err != nil {
			return nil, fmt.Errorf("config: GCS_URI: %w", err)
		}
		cfg.Artifact.Bucket = bucket
		cfg.Artifact.Prefix = prefix
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.KPIMode {
	case KPIModeModel, KPIModeLocal:
	default:
		return fmt.Errorf("config: KPI_MODE must be %q or %q, got %q", KPIModeModel, KPIModeLocal, c.KPIMode)
	}

	switch c.Artifact.Backend {
	case artifact.BackendFile, artifact.BackendMemory:
	case artifact.BackendGCS:
		if c.Artifact.Bucket == "" {
			return fmt.Errorf("config: GCS_BUCKET is required for the gcs backend")
		}
	case artifact.BackendBigQuery:
		if c.Artifact.ProjectID == "" {
			return fmt.Errorf("config: BQ_PROJECT is required for the bigquery backend")
		}
	default:
		return fmt.Errorf("config: unknown ARTIFACT_BACKEND %q", c.Artifact.Backend)
	}

	if c.Model.Timeout <= 0 {
		return fmt.Errorf("config: MODEL_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
