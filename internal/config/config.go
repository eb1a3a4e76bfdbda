package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig 数据库配置（仅开发 stub 服务使用）
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置（baseline 缓存）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config family-admin 配置
type Config struct {
	API struct {
		BaseURL       string
		Timeout       time.Duration
		RetryCount    int
		SessionCookie string
	}
	Save struct {
		// MaxInFlight 同时进行的 PATCH 请求上限，0 = 不限制
		MaxInFlight int
	}
	Cache struct {
		Enabled bool
		TTL     time.Duration
	}
	Redis RedisConfig

	// 开发 stub 服务
	HTTP struct {
		Addr string
	}
	Stub struct {
		// SeedDemo 启动时写入缺失的演示 subject
		SeedDemo bool
		// FailEntities 这些 entity 的 PATCH 一律失败
		FailEntities []string
	}
	DBEnabled bool
	Database  DatabaseConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置：先读取可选的 .env 文件（不覆盖已有环境变量），再读环境变量
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := &Config{}
	cfg.API.BaseURL = strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/")
	cfg.API.Timeout = parseDuration(getEnv("API_TIMEOUT", "15s"), 15*time.Second)
	cfg.API.RetryCount = parseInt(getEnv("API_RETRY_COUNT", "2"), 2)
	cfg.API.SessionCookie = getEnv("API_SESSION_COOKIE", "")

	cfg.Save.MaxInFlight = parseInt(getEnv("SAVE_MAX_IN_FLIGHT", "0"), 0)

	cfg.Cache.Enabled = getEnv("CACHE_ENABLED", "false") == "true"
	cfg.Cache.TTL = parseDuration(getEnv("CACHE_TTL", "5m"), 5*time.Minute)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.Stub.SeedDemo = getEnv("SEED_DEMO", "true") != "false"
	cfg.Stub.FailEntities = splitList(getEnv("STUB_FAIL_ENTITIES", ""))
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "family_admin")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Save.MaxInFlight < 0 {
		return nil, fmt.Errorf("SAVE_MAX_IN_FLIGHT must be >= 0, got %d", cfg.Save.MaxInFlight)
	}
	return cfg, nil
}

// splitList "a, b,,c" -> [a b c]
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
