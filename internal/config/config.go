// Package config loads service configuration with koanf: struct defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/detect"
	"github.com/kdimtricp/arcwatch/internal/logging"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix namespaces structured environment overrides, e.g.
// ARCWATCH_DETECTION__SAMPLE_FPS=8 sets detection.sample_fps.
const EnvPrefix = "ARCWATCH_"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/arcwatch/config.yaml",
}

type Config struct {
	Server    ServerConfig           `koanf:"server"`
	Database  database.Config        `koanf:"database"`
	Storage   StorageConfig          `koanf:"storage"`
	Queue     QueueConfig            `koanf:"queue"`
	Worker    WorkerConfig           `koanf:"worker"`
	Logging   logging.Config         `koanf:"logging"`
	Detection detect.AlgorithmConfig `koanf:"detection"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxUploadSize   int64         `koanf:"max_upload_size" validate:"gt=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	UploadDir   string `koanf:"upload_dir" validate:"required"`
	SnapshotDir string `koanf:"snapshot_dir" validate:"required"`
}

type QueueConfig struct {
	Capacity int `koanf:"capacity" validate:"min=1,max=100000"`
}

type WorkerConfig struct {
	SnapshotsPerFile int   `koanf:"snapshots_per_file" validate:"min=1,max=100"`
	FrameKeepMs      int64 `koanf:"frame_keep_ms" validate:"gte=0"`
	RequeueOnStart   bool  `koanf:"requeue_on_start"`
	FFProbe          bool  `koanf:"ffprobe"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadSize:   1 << 30,
		},
		Database: database.Config{
			Type:       "sqlite",
			Host:       "localhost",
			Port:       5432,
			User:       "arcwatch",
			Password:   "arcwatch_dev",
			Name:       "arcwatch",
			SQLitePath: "./arcwatch.db",
		},
		Storage: StorageConfig{
			UploadDir:   "./uploads",
			SnapshotDir: "./snapshots",
		},
		Queue:  QueueConfig{Capacity: 256},
		Worker: WorkerConfig{SnapshotsPerFile: 5, FrameKeepMs: 5200, RequeueOnStart: true, FFProbe: true},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Detection: detect.DefaultAlgorithmConfig(),
	}
}

// legacyEnv maps the flat variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"PORT":            "server.port",
	"MAX_UPLOAD_SIZE": "server.max_upload_size",
	"UPLOAD_DIR":      "storage.upload_dir",
	"SNAPSHOT_DIR":    "storage.snapshot_dir",
	"DB_TYPE":         "database.type",
	"DB_HOST":         "database.host",
	"DB_PORT":         "database.port",
	"DB_USER":         "database.user",
	"DB_PASSWORD":     "database.password",
	"DB_NAME":         "database.name",
	"DB_PATH":         "database.sqlite_path",
	"LOG_LEVEL":       "logging.level",
	"LOG_FORMAT":      "logging.format",
	"LOG_CALLER":      "logging.caller",
	"QUEUE_CAPACITY":  "queue.capacity",
}

func envTransform(key string) string {
	if path, ok := legacyEnv[key]; ok {
		return path
	}
	if !strings.HasPrefix(key, EnvPrefix) {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Load reads .env (if present), then defaults, the config file and the
// environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load without .env handling; path may be empty.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Detection tuning falls back per field instead of failing the load.
	detection := k.Cut("detection").Raw()
	k.Delete("detection")

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Detection = parseDetection(detection)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// parseDetection hands the detection sub-tree to detect.ParseAlgorithmConfig.
// Environment values arrive as strings, so numeric strings are converted first.
func parseDetection(raw map[string]any) detect.AlgorithmConfig {
	flat := make(map[string]any, len(raw))
	for key, value := range raw {
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				value = f
			}
		}
		flat[key] = value
	}

	data, err := json.Marshal(flat)
	if err != nil {
		logging.Warn().Err(err).Msg("Unreadable detection settings, using defaults")
		return detect.DefaultAlgorithmConfig()
	}
	return detect.ParseAlgorithmConfig(data)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section. Detection settings are clamped, not validated.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
