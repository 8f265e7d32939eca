// Package config loads labcore settings from an optional YAML file and
// LABCORE_* environment variables, in that order of precedence from lowest to
// highest.
package config

import (
	"errors"
	"fmt"
	"labcore/internal/blob"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

// Config is the full labcore configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Blob     blob.Config    `yaml:"blob"`
	Log      LogConfig      `yaml:"log"`
	Repair   RepairConfig   `yaml:"repair"`
	Activity ActivityConfig `yaml:"activity"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Driver        string `yaml:"driver" validate:"oneof=memory sqlite postgres mongo"`
	MemoryPath    string `yaml:"memory_path"`
	SQLitePath    string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN   string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	MongoURI      string `yaml:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDatabase string `yaml:"mongo_database" validate:"required_if=Driver mongo"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// RepairConfig configures reconciliation runs.
type RepairConfig struct {
	Schedule string        `yaml:"schedule"`
	MinAge   time.Duration `yaml:"min_age" validate:"gte=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ActivityConfig configures the activity log worker.
type ActivityConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size" validate:"gte=0"`
}

// MetricsConfig selects the metrics and tracing exporters.
type MetricsConfig struct {
	Exporter string `yaml:"exporter" validate:"oneof=none expvar prometheus"`
	Tracer   string `yaml:"tracer" validate:"oneof=none json otel"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: StorageSQLite, SQLitePath: "./labcore.db", MongoDatabase: "labcore"},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Repair:  RepairConfig{MinAge: time.Minute, Timeout: 5 * time.Minute},
		Activity: ActivityConfig{
			Enabled:   true,
			QueueSize: 256,
		},
		Metrics: MetricsConfig{Exporter: "none", Tracer: "none"},
	}
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads path (skipped when empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("LABCORE_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("LABCORE_MEMORY_PATH", &cfg.Storage.MemoryPath)
	str("LABCORE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("LABCORE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("LABCORE_MONGO_URI", &cfg.Storage.MongoURI)
	str("LABCORE_MONGO_DATABASE", &cfg.Storage.MongoDatabase)

	var driver string
	str("LABCORE_BLOB_DRIVER", &driver)
	if driver != "" {
		cfg.Blob.Driver = blob.Driver(driver)
	}
	str("LABCORE_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("LABCORE_BLOB_PUBLIC_URL", &cfg.Blob.PublicURL)
	str("LABCORE_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("LABCORE_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("LABCORE_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("LABCORE_BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	str("LABCORE_BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	str("LABCORE_BLOB_S3_SESSION_TOKEN", &cfg.Blob.S3.SessionToken)

	str("LABCORE_LOG_LEVEL", &cfg.Log.Level)
	str("LABCORE_LOG_FORMAT", &cfg.Log.Format)
	str("LABCORE_REPAIR_SCHEDULE", &cfg.Repair.Schedule)
	str("LABCORE_METRICS_EXPORTER", &cfg.Metrics.Exporter)
	str("LABCORE_TRACER", &cfg.Metrics.Tracer)

	bools := map[string]*bool{
		"LABCORE_BLOB_S3_PATH_STYLE": &cfg.Blob.S3.PathStyle,
		"LABCORE_ACTIVITY_ENABLED":   &cfg.Activity.Enabled,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	durations := map[string]*time.Duration{
		"LABCORE_REPAIR_MIN_AGE": &cfg.Repair.MinAge,
		"LABCORE_REPAIR_TIMEOUT": &cfg.Repair.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	if v, ok := lookup("LABCORE_ACTIVITY_QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LABCORE_ACTIVITY_QUEUE_SIZE: %w", err)
		}
		cfg.Activity.QueueSize = n
	}
	return nil
}
