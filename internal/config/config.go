package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Database  DatabaseConfig
	Registry  RegistryConfig
	Artifacts ArtifactConfig
	Inference InferenceConfig
	Trainer   TrainerConfig
	MinIO     MinIOConfig
	Features  FeatureConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LoggerConfig struct {
	Level  string
	Format string
	// File enables rotating file output in addition to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type DatabaseConfig struct {
	Driver          string // postgres | sqlite
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SQLitePath      string
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RegistryConfig struct {
	BaseModelPath string
	ArtifactDir   string
	// ResolvePolicy is "fallback" or "error".
	ResolvePolicy string
}

type ArtifactConfig struct {
	CacheDir       string
	CacheSize      int
	Watch          bool
	ONNXRuntimeLib string
}

type InferenceConfig struct {
	Workers int
	Timeout time.Duration
}

type TrainerConfig struct {
	Mode    string // http | kube | none
	URL     string
	Timeout time.Duration

	Image          string
	Namespace      string
	InCluster      bool
	KubeConfigPath string
	ResultBucket   string
	PollInterval   time.Duration
}

type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type FeatureConfig struct {
	AliasFile string
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")
	v.SetDefault("LOGGER_MAX_SIZE_MB", 100)
	v.SetDefault("LOGGER_MAX_BACKUPS", 5)

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_NAME", "transit_classifier")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 2)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("SQLITE_PATH", "data/registry.db")

	v.SetDefault("BASE_MODEL_PATH", "models/base_model.json")
	v.SetDefault("ARTIFACT_DIR", "models")
	v.SetDefault("REGISTRY_RESOLVE_POLICY", "fallback")

	v.SetDefault("ARTIFACT_CACHE_DIR", "data/artifacts")
	v.SetDefault("ARTIFACT_CACHE_SIZE", 8)
	v.SetDefault("ARTIFACT_WATCH", true)
	v.SetDefault("ONNX_RUNTIME_LIB", "")

	v.SetDefault("INFERENCE_WORKERS", runtime.GOMAXPROCS(0))
	v.SetDefault("INFERENCE_TIMEOUT", "10s")

	v.SetDefault("TRAINER_MODE", "none")
	v.SetDefault("TRAINER_URL", "http://localhost:8090")
	v.SetDefault("TRAINER_TIMEOUT", "30m")
	v.SetDefault("TRAINER_IMAGE", "")
	v.SetDefault("TRAINER_NAMESPACE", "model-training")
	v.SetDefault("TRAINER_IN_CLUSTER", false)
	v.SetDefault("KUBECONFIG", "")
	v.SetDefault("TRAINER_RESULT_BUCKET", "training-results")
	v.SetDefault("TRAINER_POLL_INTERVAL", "5s")

	v.SetDefault("MINIO_ENABLED", false)
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_REGION", "")

	v.SetDefault("FEATURE_ALIAS_FILE", "")

	// Env
	v.AutomaticEnv()

	// Optional file, env still wins
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		Logger: LoggerConfig{
			Level:      v.GetString("LOGGER_LEVEL"),
			Format:     v.GetString("LOGGER_FORMAT"),
			File:       v.GetString("LOGGER_FILE"),
			MaxSizeMB:  v.GetInt("LOGGER_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOGGER_MAX_BACKUPS"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			Host:            v.GetString("DATABASE_HOST"),
			Port:            v.GetInt("DATABASE_PORT"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			Name:            v.GetString("DATABASE_NAME"),
			SSLMode:         v.GetString("DATABASE_SSLMODE"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: duration(v, "DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			SQLitePath:      v.GetString("SQLITE_PATH"),
		},
		Registry: RegistryConfig{
			BaseModelPath: v.GetString("BASE_MODEL_PATH"),
			ArtifactDir:   v.GetString("ARTIFACT_DIR"),
			ResolvePolicy: strings.ToLower(v.GetString("REGISTRY_RESOLVE_POLICY")),
		},
		Artifacts: ArtifactConfig{
			CacheDir:       v.GetString("ARTIFACT_CACHE_DIR"),
			CacheSize:      v.GetInt("ARTIFACT_CACHE_SIZE"),
			Watch:          v.GetBool("ARTIFACT_WATCH"),
			ONNXRuntimeLib: v.GetString("ONNX_RUNTIME_LIB"),
		},
		Inference: InferenceConfig{
			Workers: v.GetInt("INFERENCE_WORKERS"),
			Timeout: duration(v, "INFERENCE_TIMEOUT", 10*time.Second),
		},
		Trainer: TrainerConfig{
			Mode:           strings.ToLower(v.GetString("TRAINER_MODE")),
			URL:            strings.TrimRight(v.GetString("TRAINER_URL"), "/"),
			Timeout:        duration(v, "TRAINER_TIMEOUT", 30*time.Minute),
			Image:          v.GetString("TRAINER_IMAGE"),
			Namespace:      v.GetString("TRAINER_NAMESPACE"),
			InCluster:      v.GetBool("TRAINER_IN_CLUSTER"),
			KubeConfigPath: v.GetString("KUBECONFIG"),
			ResultBucket:   v.GetString("TRAINER_RESULT_BUCKET"),
			PollInterval:   duration(v, "TRAINER_POLL_INTERVAL", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Enabled:   v.GetBool("MINIO_ENABLED"),
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Region:    v.GetString("MINIO_REGION"),
		},
		Features: FeatureConfig{
			AliasFile: v.GetString("FEATURE_ALIAS_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Trainer.Mode {
	case "http", "kube", "none":
	default:
		return fmt.Errorf("unsupported TRAINER_MODE %q", c.Trainer.Mode)
	}
	if c.Trainer.Mode == "kube" {
		if c.Trainer.Image == "" {
			return fmt.Errorf("TRAINER_IMAGE is required when TRAINER_MODE=kube")
		}
		if !c.MinIO.Enabled {
			return fmt.Errorf("MINIO_ENABLED is required when TRAINER_MODE=kube")
		}
	}
	return nil
}

// duration falls back to def when the value does not parse
func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return def
	}
	return d
}
