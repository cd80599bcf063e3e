package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/farazbot/backend/internal/models"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-this-secret-key"

// ErrMissingToken is returned by Load when DISCORD_TOKEN is not set
var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	Discord    DiscordConfig
	Moderation ModerationConfig
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	API        APIConfig
	CORS       CORSConfig
	LogLevel   string
}

type DiscordConfig struct {
	Token            string
	WelcomeChannelID string
	ModLogChannelID  string
	CommandPrefix    string
	BotName          string
	ServerName       string
}

type ModerationConfig struct {
	ActionOnApproval     models.Action
	BannedWords          []string
	SevereTriggers       []string
	ApprovalTimeout      time.Duration
	WarningTTL           time.Duration
	MaxPendingApprovals  int
	CommandRatePerSecond float64
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type APIConfig struct {
	Key                string
	KeyHeader          string
	RateLimitPerSecond int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Discord: DiscordConfig{
			Token:            strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
			WelcomeChannelID: channelID(os.Getenv("WELCOME_CHANNEL_ID")),
			ModLogChannelID:  channelID(os.Getenv("MOD_LOG_CHANNEL_ID")),
			CommandPrefix:    getEnv("COMMAND_PREFIX", "!"),
			BotName:          getEnv("BOT_NAME", "FarazBot"),
			ServerName:       getEnv("SERVER_NAME", "The Stellar Boardroom"),
		},
		Moderation: ModerationConfig{
			ActionOnApproval:     models.ParseAction(os.Getenv("ACTION_ON_APPROVAL")),
			BannedWords:          splitList(getEnv("BANNED_WORDS", "badword1,badword2")),
			SevereTriggers:       splitList(getEnv("SEVERE_TRIGGERS", "free nitro,send password,scam")),
			ApprovalTimeout:      time.Duration(getInt("APPROVAL_TIMEOUT_SECONDS", 300)) * time.Second,
			WarningTTL:           time.Duration(getInt("WARNING_TTL_SECONDS", 5)) * time.Second,
			MaxPendingApprovals:  getInt("MAX_PENDING_APPROVALS", 1024),
			CommandRatePerSecond: getFloat("COMMAND_RATE_PER_SECOND", 2),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", defaultJWTSecret),
			ExpiryHours: getInt("JWT_EXPIRY_HOURS", 24),
		},
		API: APIConfig{
			Key:                os.Getenv("API_KEY"),
			KeyHeader:          getEnv("API_KEY_HEADER", "X-API-Key"),
			RateLimitPerSecond: getInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if cfg.Discord.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.JWT.Secret == defaultJWTSecret && cfg.IsProduction() {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}
	if cfg.Moderation.ApprovalTimeout <= 0 {
		return nil, fmt.Errorf("APPROVAL_TIMEOUT_SECONDS must be positive")
	}
	if cfg.Moderation.MaxPendingApprovals <= 0 {
		return nil, fmt.Errorf("MAX_PENDING_APPROVALS must be positive")
	}

	return cfg, nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

// channelID treats "0" and blanks as unset
func channelID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "0" {
		return ""
	}
	return raw
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
