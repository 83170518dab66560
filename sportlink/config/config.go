package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string   `yaml:"http_addr"`
	LogDir      string   `yaml:"log_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
	JWTSecret   string   `yaml:"jwt_secret"`
	Timezone    string   `yaml:"timezone"`

	// ChatBackend selects where threads live: memory, sql or redis.
	ChatBackend       string `yaml:"chat_backend"`
	ChatRetentionDays int    `yaml:"chat_retention_days"`
	ChatMaxStorageKB  int    `yaml:"chat_max_storage_kb"`

	DBDriver   string `yaml:"db_driver"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	SQLitePath string `yaml:"sqlite_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	BackendURL     string        `yaml:"backend_url"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	MinIOEndpoint   string `yaml:"minio_endpoint"`
	MinIOAccessKey  string `yaml:"minio_access_key"`
	MinIOSecretKey  string `yaml:"minio_secret_key"`
	MinIOBucket     string `yaml:"minio_bucket"`
	MinIOUseSSL     bool   `yaml:"minio_use_ssl"`
	MaxAttachmentMB int    `yaml:"max_attachment_mb"`
}

func defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		LogDir:            "./logs",
		CORSOrigins:       []string{"*"},
		Timezone:          "America/Bogota",
		ChatBackend:       "memory",
		ChatRetentionDays: 30,
		ChatMaxStorageKB:  5120,
		DBDriver:          "postgres",
		DBPort:            "5432",
		SQLitePath:        "sportlink.db",
		RedisAddr:         "localhost:6379",
		BackendURL:        "http://localhost:8081",
		BackendTimeout:    15 * time.Second,
		MinIOBucket:       "sportlink-attachments",
		MaxAttachmentMB:   10,
	}
}

// LoadConfig layers the optional YAML file named by SPORTLINK_CONFIG, then
// an optional .env file, then the process environment.
func LoadConfig() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("SPORTLINK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.Timezone = getEnv("TZ_NAME", cfg.Timezone)

	cfg.ChatBackend = strings.ToLower(getEnv("CHAT_BACKEND", cfg.ChatBackend))
	cfg.ChatRetentionDays = getEnvInt("CHAT_RETENTION_DAYS", cfg.ChatRetentionDays)
	cfg.ChatMaxStorageKB = getEnvInt("CHAT_MAX_STORAGE_KB", cfg.ChatMaxStorageKB)

	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.BackendURL = getEnv("BACKEND_URL", cfg.BackendURL)
	if d := getEnv("BACKEND_TIMEOUT", ""); d != "" {
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return cfg, fmt.Errorf("BACKEND_TIMEOUT: %w", err)
		}
		cfg.BackendTimeout = parsed
	}

	cfg.MinIOEndpoint = getEnv("MINIO_ENDPOINT", cfg.MinIOEndpoint)
	cfg.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinIOAccessKey)
	cfg.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinIOSecretKey)
	cfg.MinIOBucket = getEnv("MINIO_BUCKET", cfg.MinIOBucket)
	cfg.MinIOUseSSL = getEnv("MINIO_USE_SSL", strconv.FormatBool(cfg.MinIOUseSSL)) == "true"
	cfg.MaxAttachmentMB = getEnvInt("MAX_ATTACHMENT_MB", cfg.MaxAttachmentMB)

	switch cfg.ChatBackend {
	case "memory", "sql", "redis":
	default:
		return cfg, fmt.Errorf("CHAT_BACKEND: unknown backend %q", cfg.ChatBackend)
	}
	return cfg, nil
}

// Location resolves Timezone, falling back to UTC-5 when the zone database is missing.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("COT", -5*3600)
	}
	return loc
}

func (c Config) ChatRetention() time.Duration {
	return time.Duration(c.ChatRetentionDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
