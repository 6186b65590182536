package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Directory DirectoryConfig
	LogLevel  log.Level
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	mongo, err := loadMongoConfig()
	if err != nil {
		return nil, err
	}

	level, err := parseLogLevelEnv("LOG_LEVEL", log.InfoLevel)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Mongo:     mongo,
		Redis:     loadRedisConfig(),
		Directory: loadDirectoryConfig(),
		LogLevel:  level,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := parseListEnv("CORS_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3001"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3001" 或 "127.0.0.1:3001"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// MongoConfig 描述文档存储连接。
type MongoConfig struct {
	URL      string
	Database string
	Timeout  time.Duration
}

// Enabled 表示是否配置了 MongoDB；未配置时使用内存存储。
func (c MongoConfig) Enabled() bool {
	return c.URL != ""
}

func loadMongoConfig() (MongoConfig, error) {
	timeout := 5
	if override, err := parseOptionalIntEnv("MONGO_TIMEOUT"); err != nil {
		return MongoConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return MongoConfig{}, fmt.Errorf("invalid MONGO_TIMEOUT value %q: must be at least 1 second", strconv.Itoa(*override))
		}
		timeout = *override
	}

	return MongoConfig{
		URL:      strings.TrimSpace(os.Getenv("MONGO_URL")),
		Database: getEnvOrDefault("MONGO_DB", "rent_in_out"),
		Timeout:  time.Duration(timeout) * time.Second,
	}, nil
}

// RedisConfig 描述跨实例推送使用的 Redis。
type RedisConfig struct {
	URL     string
	Channel string
}

// Enabled 表示是否开启跨实例推送。
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		Channel: getEnvOrDefault("REDIS_CHANNEL", "chat:events"),
	}
}

// DirectoryConfig 描述用户目录的列表行为。
type DirectoryConfig struct {
	// SuperID 是不出现在用户列表里的平台账号。
	SuperID string
}

func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{SuperID: strings.TrimSpace(os.Getenv("SUPER_ID"))}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func parseLogLevelEnv(key string, defaultValue log.Level) (log.Level, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	level, err := log.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return level, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
