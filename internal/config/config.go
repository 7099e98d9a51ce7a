// Package config centralizes how the importer reads its JSON configuration
// file and environment overrides, exposing them as strongly typed values. The
// resulting Config is built once at process start and passed by parameter;
// no other package reads the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the runtime configuration for every subcommand.
type Config struct {
	Sanity   SanityConfig   `json:"sanity"`
	Security SecurityConfig `json:"security"`
	Import   ImportConfig   `json:"import"`
	Backup   BackupConfig   `json:"backup"`
	Logging  LoggingConfig  `json:"logging"`

	// APIToken is resolved from the env var named by Security.TokenEnvVar at
	// load time so leaf components never touch the environment. Never
	// serialized.
	APIToken string `json:"-"`
}

// SanityConfig identifies the remote dataset.
type SanityConfig struct {
	ProjectID  string `json:"projectId"`
	Dataset    string `json:"dataset"`
	APIVersion string `json:"apiVersion"`
}

// SecurityConfig names where the API token comes from.
type SecurityConfig struct {
	TokenEnvVar string `json:"tokenEnvVar"`
}

// ImportConfig controls the upsert pipeline.
type ImportConfig struct {
	DryRun           bool    `json:"dryRun"`
	BatchSize        int     `json:"batchSize"`
	RetryCount       int     `json:"retryCount"`
	ArticleDir       string  `json:"articleDir"`
	FilePattern      string  `json:"filePattern"`
	DocumentType     string  `json:"documentType"`
	SuccessThreshold float64 `json:"successThreshold"`
	StrictThreshold  bool    `json:"strictThreshold"`
}

// BackupConfig controls the pre-import dataset export.
type BackupConfig struct {
	Enabled bool     `json:"enabled"`
	Dir     string   `json:"dir"`
	S3      S3Config `json:"s3"`
}

// S3Config optionally ships backup archives to S3-compatible storage.
type S3Config struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"useSSL"`
}

// LoggingConfig controls the progress stream and job log placement.
type LoggingConfig struct {
	Dir        string `json:"dir"`
	Format     string `json:"format"`
	Level      string `json:"level"`
	HistoryDSN string `json:"historyDSN"`
}

const (
	// DefaultPath is consulted when neither --config nor CONFIG_PATH is set.
	DefaultPath = "import.config.json"

	defaultDataset          = "production"
	defaultAPIVersion       = "2024-01-01"
	defaultTokenEnvVar      = "SANITY_API_TOKEN"
	defaultBatchSize        = 5
	defaultRetryCount       = 3
	defaultArticleDir       = "articles"
	defaultFilePattern      = "*.json"
	defaultDocumentType     = "ingredient"
	defaultSuccessThreshold = 0.8
	defaultBackupDir        = "backups"
	defaultLogDir           = "logs"
	defaultLogFormat        = "pretty"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sanity:   SanityConfig{Dataset: defaultDataset, APIVersion: defaultAPIVersion},
		Security: SecurityConfig{TokenEnvVar: defaultTokenEnvVar},
		Import: ImportConfig{
			BatchSize:        defaultBatchSize,
			RetryCount:       defaultRetryCount,
			ArticleDir:       defaultArticleDir,
			FilePattern:      defaultFilePattern,
			DocumentType:     defaultDocumentType,
			SuccessThreshold: defaultSuccessThreshold,
		},
		Backup:  BackupConfig{Enabled: true, Dir: defaultBackupDir, S3: S3Config{UseSSL: true}},
		Logging: LoggingConfig{Dir: defaultLogDir, Format: defaultLogFormat, Level: "info"},
	}
}

// Load builds the Config from the file at path (or CONFIG_PATH, or
// DefaultPath), then applies environment overrides. A missing file at the
// implicit default path falls back to defaults; an explicitly requested file
// that is missing or malformed is a fatal configuration error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv("CONFIG_PATH"); env != "" {
			path = env
			explicit = true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.clamp()
	if cfg.Security.TokenEnvVar != "" {
		cfg.APIToken = os.Getenv(cfg.Security.TokenEnvVar)
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SANITY_PROJECT_ID"); v != "" {
		c.Sanity.ProjectID = v
	}
	if v := os.Getenv("SANITY_DATASET"); v != "" {
		c.Sanity.Dataset = v
	}
	if v, ok := parseBoolEnv("DRY_RUN"); ok {
		c.Import.DryRun = v
	}
	if v, ok := parseIntEnv("BATCH_SIZE"); ok {
		c.Import.BatchSize = v
	}
	if v, ok := parseBoolEnv("VERBOSE"); ok && v {
		c.Logging.Level = "debug"
	}
}

func (c *Config) clamp() {
	if c.Import.BatchSize <= 0 {
		c.Import.BatchSize = defaultBatchSize
	}
	if c.Import.RetryCount < 0 {
		c.Import.RetryCount = defaultRetryCount
	}
	if c.Import.SuccessThreshold <= 0 || c.Import.SuccessThreshold > 1 {
		c.Import.SuccessThreshold = defaultSuccessThreshold
	}
	if c.Import.DocumentType == "" {
		c.Import.DocumentType = defaultDocumentType
	}
	if c.Import.FilePattern == "" {
		c.Import.FilePattern = defaultFilePattern
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = defaultLogDir
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = defaultBackupDir
	}
}

func parseBoolEnv(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return parsed, true
}

func parseIntEnv(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return parsed, true
}
