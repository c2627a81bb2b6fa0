// Package config builds typed application settings from env/.env through wbf config
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	wbfconfig "github.com/wb-go/wbf/config"
)

const (
	StorageMemory = "memory"
	StorageMinio  = "minio"

	DeliveryDir     = "dir"
	DeliveryStorage = "storage"
)

type Config struct {
	App      AppConfig
	Remote   RemoteConfig
	Batch    BatchConfig
	Storage  StorageConfig
	Delivery DeliveryConfig
	Kafka    KafkaConfig
}

type AppConfig struct {
	Port     string
	GinMode  string
	LogLevel string
}

type RemoteConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type BatchConfig struct {
	Concurrency      int
	DownloadInterval time.Duration
}

type StorageConfig struct {
	Type     string
	Endpoint string
	User     string
	Pass     string
	Bucket   string
	UseSSL   bool
}

type DeliveryConfig struct {
	Type      string
	OutputDir string
}

type KafkaConfig struct {
	Broker string
	Topic  string
}

// Enabled - события в кафку шлем только если указан брокер
func (k KafkaConfig) Enabled() bool {
	return k.Broker != ""
}

// Load reads ./.env (if present) plus process environment and returns a validated Config.
func Load() (*Config, error) {
	appConfig := wbfconfig.New()
	appConfig.EnableEnv("")

	if _, err := os.Stat("./.env"); err == nil {
		if err := appConfig.LoadEnvFiles("./.env"); err != nil {
			return nil, fmt.Errorf("failed to load envs: %w", err)
		}
	}

	return Parse(appConfig.GetString)
}

// Parse builds Config from a key lookup function. Empty values fall back to defaults.
func Parse(get func(string) string) (*Config, error) {
	var errs []error

	cfg := &Config{
		App: AppConfig{
			Port:     withDefault(get("APP_PORT"), "8080"),
			GinMode:  withDefault(get("GIN_MODE"), "release"),
			LogLevel: withDefault(get("LOG_LEVEL"), "info"),
		},
		Remote: RemoteConfig{
			APIKey: withDefault(get("GEMINI_API_KEY"), get("API_KEY")),
			Model:  withDefault(get("GEMINI_MODEL"), "gemini-2.5-flash-image"),
		},
		Storage: StorageConfig{
			Type:     strings.ToLower(withDefault(get("STORAGE_TYPE"), StorageMemory)),
			Endpoint: get("MINIO_ENDPOINT"),
			User:     get("MINIO_USER"),
			Pass:     get("MINIO_PASS"),
			Bucket:   withDefault(get("BUCKET_NAME"), "clearcut"),
		},
		Delivery: DeliveryConfig{
			Type:      strings.ToLower(withDefault(get("DELIVERY_TYPE"), DeliveryDir)),
			OutputDir: withDefault(get("OUTPUT_DIR"), "./downloads"),
		},
		Kafka: KafkaConfig{
			Broker: get("KAFKA_BROKER"),
			Topic:  withDefault(get("KAFKA_TOPIC"), "clearcut-events"),
		},
	}

	var err error
	if cfg.Remote.Timeout, err = parseDuration(get("REMOTE_TIMEOUT"), 0); err != nil {
		errs = append(errs, fmt.Errorf("REMOTE_TIMEOUT: %w", err))
	}
	if cfg.Batch.Concurrency, err = parseInt(get("BATCH_CONCURRENCY"), 3); err != nil {
		errs = append(errs, fmt.Errorf("BATCH_CONCURRENCY: %w", err))
	}
	if cfg.Batch.DownloadInterval, err = parseDuration(get("DOWNLOAD_INTERVAL"), 500*time.Millisecond); err != nil {
		errs = append(errs, fmt.Errorf("DOWNLOAD_INTERVAL: %w", err))
	}
	if v := get("MINIO_USE_SSL"); v != "" {
		if cfg.Storage.UseSSL, err = strconv.ParseBool(v); err != nil {
			errs = append(errs, fmt.Errorf("MINIO_USE_SSL: %w", err))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Batch.Concurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be positive")
	}
	if cfg.Batch.DownloadInterval < 0 {
		return fmt.Errorf("DOWNLOAD_INTERVAL must be non-negative")
	}
	if cfg.Remote.Timeout < 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be non-negative")
	}

	switch cfg.Storage.Type {
	case StorageMemory:
	case StorageMinio:
		if cfg.Storage.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for minio storage")
		}
		if cfg.Storage.User == "" || cfg.Storage.Pass == "" {
			return fmt.Errorf("MINIO_USER and MINIO_PASS are required for minio storage")
		}
	default:
		return fmt.Errorf("STORAGE_TYPE must be %q or %q", StorageMemory, StorageMinio)
	}

	switch cfg.Delivery.Type {
	case DeliveryDir:
		if cfg.Delivery.OutputDir == "" {
			return fmt.Errorf("OUTPUT_DIR is required for dir delivery")
		}
	case DeliveryStorage:
	default:
		return fmt.Errorf("DELIVERY_TYPE must be %q or %q", DeliveryDir, DeliveryStorage)
	}

	// API-ключ здесь не проверяем: его отсутствие - ошибка конкретной картинки, а не всего приложения
	return nil
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func parseInt(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return time.ParseDuration(strings.TrimSpace(v))
}
