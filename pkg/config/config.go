// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Ton        TonConfig
	Settlement SettlementConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type TonConfig struct {
	ContractAddress     string
	OwnerAddress        string
	ConfirmationPoll    time.Duration
	ConfirmationRetries int
}

type SettlementConfig struct {
	WorkerInterval    time.Duration
	ReconcileInterval time.Duration
	BatchLimit        int
}

func Load() *Config {
	// .env is optional; real deployments inject env vars directly
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Ton: TonConfig{
			ContractAddress:     getEnv("TON_CONTRACT_ADDRESS", ""),
			OwnerAddress:        getEnv("TON_OWNER_ADDRESS", ""),
			ConfirmationPoll:    getDurationEnv("TON_CONFIRMATION_POLL", 2*time.Second),
			ConfirmationRetries: getIntEnv("TON_CONFIRMATION_RETRIES", 30),
		},
		Settlement: SettlementConfig{
			WorkerInterval:    getDurationEnv("SETTLEMENT_WORKER_INTERVAL", 1*time.Hour),
			ReconcileInterval: getDurationEnv("SETTLEMENT_RECONCILE_INTERVAL", 15*time.Minute),
			BatchLimit:        getIntEnv("SETTLEMENT_BATCH_LIMIT", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
