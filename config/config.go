// Package config gathers the server configuration in one place.
//
// Values come from the environment (optionally seeded from a .env file)
// and are read through viper so every key has a typed default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Realtime RealtimeConfig
	Log      LogConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string // e.g. ./data/tradechat.db
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry int // minutes
}

// RedisConfig enables shared presence and cross-instance fan-out. An empty
// Addr keeps everything in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// KafkaConfig enables domain event publishing. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether Kafka is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// RealtimeConfig tunes the broker.
type RealtimeConfig struct {
	MembershipCacheTTL time.Duration
	ConnectPerMinute   int
	MessageLimit       int
	MessageWindow      time.Duration
	MessageCooldown    time.Duration
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Dev bool
}

// Load reads the configuration. A .env file in the working directory is
// loaded first if present; real environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	port, err := intKey(v, "SERVER_PORT")
	if err != nil {
		return nil, err
	}
	accessExpiry, err := intKey(v, "JWT_ACCESS_EXPIRY_MINUTES")
	if err != nil {
		return nil, err
	}
	redisDB, err := intKey(v, "REDIS_DB")
	if err != nil {
		return nil, err
	}
	connectPerMinute, err := intKey(v, "WS_CONNECT_PER_MINUTE")
	if err != nil {
		return nil, err
	}
	messageLimit, err := intKey(v, "MESSAGE_RATE_LIMIT")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := durationKey(v, "MEMBERSHIP_CACHE_TTL")
	if err != nil {
		return nil, err
	}
	messageWindow, err := durationKey(v, "MESSAGE_RATE_WINDOW")
	if err != nil {
		return nil, err
	}
	messageCooldown, err := durationKey(v, "MESSAGE_RATE_COOLDOWN")
	if err != nil {
		return nil, err
	}

	jwtSecret := v.GetString("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           port,
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DATABASE_PATH"),
		},
		JWT: JWTConfig{
			Secret:            jwtSecret,
			AccessTokenExpiry: accessExpiry,
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       redisDB,
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Realtime: RealtimeConfig{
			MembershipCacheTTL: cacheTTL,
			ConnectPerMinute:   connectPerMinute,
			MessageLimit:       messageLimit,
			MessageWindow:      messageWindow,
			MessageCooldown:    messageCooldown,
		},
		Log: LogConfig{
			Dev: v.GetBool("LOG_DEV"),
		},
	}

	return cfg, nil
}

// Addr returns the listen address, e.g. "0.0.0.0:9090".
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "9090")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DATABASE_PATH", "./data/tradechat.db")
	v.SetDefault("JWT_ACCESS_EXPIRY_MINUTES", "15")
	v.SetDefault("REDIS_DB", "0")
	v.SetDefault("REDIS_PREFIX", "tradechat")
	v.SetDefault("KAFKA_TOPIC", "tradechat.events")
	v.SetDefault("MEMBERSHIP_CACHE_TTL", "30s")
	v.SetDefault("WS_CONNECT_PER_MINUTE", "30")
	v.SetDefault("MESSAGE_RATE_LIMIT", "5")
	v.SetDefault("MESSAGE_RATE_WINDOW", "5s")
	v.SetDefault("MESSAGE_RATE_COOLDOWN", "15s")
	v.SetDefault("LOG_DEV", "false")
}

// intKey parses an integer strictly; viper's GetInt silently turns garbage
// into 0.
func intKey(v *viper.Viper, key string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(v.GetString(key)), "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationKey(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
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
