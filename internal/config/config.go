// Package config loads service settings from the environment, an optional .env
// file, and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port            int
	Store           string
	DatabaseURL     string
	JWTSecret       string
	TokenTTL        time.Duration
	CORSOrigins     []string
	BulkConcurrency int
	TariffCacheSize int
	NotifyWebhook   string
	MinIO           MinIOConfig
	Kafka           KafkaConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether artifacts go to MinIO instead of process memory.
func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// New returns a viper instance bound to the environment with defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("port", 8080)
	v.SetDefault("store", StorePostgres)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("bulk_concurrency", 4)
	v.SetDefault("tariff_cache_size", 1024)
	v.SetDefault("minio_bucket", "artifacts")
	v.SetDefault("kafka_topic", "webforge.events")
	return v
}

// Load reads .env (if present) and an optional config file, then builds and
// validates the configuration from v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	cfg := &Config{
		Port:            v.GetInt("port"),
		Store:           strings.ToLower(v.GetString("store")),
		DatabaseURL:     v.GetString("database_url"),
		JWTSecret:       v.GetString("jwt_secret"),
		TokenTTL:        v.GetDuration("token_ttl"),
		CORSOrigins:     splitList(v.GetString("cors_origins")),
		BulkConcurrency: v.GetInt("bulk_concurrency"),
		TariffCacheSize: v.GetInt("tariff_cache_size"),
		NotifyWebhook:   v.GetString("notify_webhook_url"),
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("minio_endpoint"),
			AccessKey: v.GetString("minio_access_key"),
			SecretKey: v.GetString("minio_secret_key"),
			Bucket:    v.GetString("minio_bucket"),
			UseSSL:    v.GetBool("minio_use_ssl"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka_brokers")),
			Topic:   v.GetString("kafka_topic"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", c.Store))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.BulkConcurrency <= 0 {
		errs = append(errs, errors.New("BULK_CONCURRENCY must be positive"))
	}
	if c.TariffCacheSize <= 0 {
		errs = append(errs, errors.New("TARIFF_CACHE_SIZE must be positive"))
	}
	if c.MinIO.Enabled() && (c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required with KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
