package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for a pipeline execution.
type Config struct {
	Environment string
	Database    DatabaseConfig
	ETL         ETLConfig
	Logging     LoggingConfig
}

// DatabaseConfig locates the SQLite warehouse file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ETLConfig controls batching and source discovery.
type ETLConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	LoadType    string        `yaml:"load_type"` // full or incremental
	SourcePath  string        `yaml:"source_path"`
	RunInterval time.Duration `yaml:"run_interval"`
}

// LoggingConfig controls the text log (the audit trail lives in the warehouse).
type LoggingConfig struct {
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

type fileConfig struct {
	Database DatabaseConfig `yaml:"database"`
	ETL      ETLConfig      `yaml:"etl"`
	Logging  LoggingConfig  `yaml:"logging"`
}

const (
	defaultDBPath     = "db/ems-warehouse.db"
	defaultSourcePath = "data/input"
	defaultBatchSize  = 50000
	minBatchSize      = 1
	maxBatchSize      = 500000
)

// Load reads configuration for env from configPath, applying the
// config.<env>.yaml overlay and then environment variable overrides.
// A missing file is not an error; defaults apply.
func Load(configPath, env string) (Config, error) {
	_ = godotenv.Load()

	if env == "" {
		env = getenv("ETL_ENV", "dev")
	}
	cfg := Config{
		Environment: env,
		Database:    DatabaseConfig{Path: defaultDBPath},
		ETL: ETLConfig{
			BatchSize:  defaultBatchSize,
			LoadType:   "full",
			SourcePath: defaultSourcePath,
		},
		Logging: LoggingConfig{Console: true},
	}

	if configPath == "" {
		configPath = getenv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	}

	fc := fileConfig{Database: cfg.Database, ETL: cfg.ETL, Logging: cfg.Logging}
	if err := mergeFile(&fc, configPath); err != nil {
		return cfg, fmt.Errorf("config load failed (%s): %w", configPath, err)
	}
	// Environment overlay wins over the base file, field by field.
	overlay := filepath.Join(filepath.Dir(configPath), fmt.Sprintf("config.%s.yaml", env))
	if err := mergeFile(&fc, overlay); err != nil {
		return cfg, fmt.Errorf("config overlay failed (%s): %w", overlay, err)
	}
	cfg.Database = fc.Database
	cfg.ETL = fc.ETL
	cfg.Logging = fc.Logging

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SOURCE_PATH"); v != "" {
		cfg.ETL.SourcePath = v
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid BATCH_SIZE=%q, using %d", v, cfg.ETL.BatchSize)
		} else {
			cfg.ETL.BatchSize = n
		}
	}
	if v := os.Getenv("LOAD_TYPE"); v != "" {
		cfg.ETL.LoadType = v
	}
	cfg.ETL.BatchSize = clampInt(cfg.ETL.BatchSize, minBatchSize, maxBatchSize)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeFile(fc *fileConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, fc)
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(cfg.ETL.SourcePath) == "" {
		return errors.New("etl source_path is required")
	}
	switch cfg.ETL.LoadType {
	case "full", "incremental":
	default:
		return fmt.Errorf("etl load_type must be full or incremental (got %q)", cfg.ETL.LoadType)
	}
	return nil
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Now returns utc time truncated to seconds for deterministic row timestamps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Timestamp formats t the way the warehouse stores text timestamps.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
