package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// 批量加载来源：DATABASE_URL 优先，其次 SEED_FILE，否则使用内置车队
	SeedFile     string
	DatabaseURL  string
	DatabaseSeed bool // 表为空时写入 SEED_FILE 或内置车队

	// NATS 实时更新（NATS_URL 为空时不启用）
	NATSURL     string
	NATSSubject string

	// Ingest
	IngestQueueSize int

	// 每辆车保留的历史位置点数量
	LocationHistoryLimit int

	// Prediction
	PredictionTimeout time.Duration
	PredictionLatency time.Duration

	// 心跳检测
	StaleAfter         time.Duration
	StaleCheckInterval time.Duration
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:           getEnv("PORT", "4000"),
		Debug:                getEnvBool("DEBUG", false),
		SeedFile:             getEnv("SEED_FILE", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DatabaseSeed:         getEnvBool("DATABASE_SEED", true),
		NATSURL:              getEnv("NATS_URL", ""),
		NATSSubject:          getEnv("NATS_SUBJECT", "fleet.updates"),
		IngestQueueSize:      getEnvInt("INGEST_QUEUE_SIZE", 256),
		LocationHistoryLimit: getEnvInt("LOCATION_HISTORY_LIMIT", 100),
		PredictionTimeout:    getEnvDuration("PREDICTION_TIMEOUT", 10*time.Second),
		PredictionLatency:    getEnvDuration("PREDICTION_LATENCY", 2*time.Second),
		StaleAfter:           getEnvDuration("STALE_AFTER", 2*time.Minute),
		StaleCheckInterval:   getEnvDuration("STALE_CHECK_INTERVAL", 30*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IngestQueueSize <= 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE must be positive, got %d", c.IngestQueueSize)
	}
	if c.LocationHistoryLimit <= 0 {
		return fmt.Errorf("LOCATION_HISTORY_LIMIT must be positive, got %d", c.LocationHistoryLimit)
	}
	if c.PredictionTimeout <= 0 {
		return fmt.Errorf("PREDICTION_TIMEOUT must be positive, got %s", c.PredictionTimeout)
	}
	if c.StaleAfter <= 0 || c.StaleCheckInterval <= 0 {
		return fmt.Errorf("STALE_AFTER and STALE_CHECK_INTERVAL must be positive")
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_URL is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
