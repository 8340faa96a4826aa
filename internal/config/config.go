package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       *AppConfig       `yaml:"app"`
	Database  *DatabaseConfig  `yaml:"database"`
	Redis     *RedisConfig     `yaml:"redis"`
	SMTP      *SMTPConfig      `yaml:"smtp"`
	SMS       *SMSConfig       `yaml:"sms"`
	Push      *PushConfig      `yaml:"push"`
	Kafka     *KafkaConfig     `yaml:"kafka"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Security  *SecurityConfig  `yaml:"security"`
	Emergency *EmergencyConfig `yaml:"emergency"`
	Maps      *MapsConfig      `yaml:"maps"`
	Archive   *ArchiveConfig   `yaml:"archive"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Port      int    `yaml:"port"`
	BaseURL   string `yaml:"base_url"`
	Debug     bool   `yaml:"debug"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogOutput string `yaml:"log_output"`
}

type SecurityConfig struct {
	AuthEnabled        bool     `yaml:"auth_enabled"`
	JWTSecret          string   `yaml:"jwt_secret"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	TrustedProxies     []string `yaml:"trusted_proxies"`
	WebhookToken       string   `yaml:"webhook_token"`
}

func Load() (*Config, error) {
	config := &Config{
		App:       loadAppConfig(),
		Database:  loadDatabaseConfig(),
		Redis:     loadRedisConfig(),
		SMTP:      loadSMTPConfig(),
		SMS:       loadSMSConfig(),
		Push:      loadPushConfig(),
		Kafka:     loadKafkaConfig(),
		WebSocket: loadWebSocketConfig(),
		Security:  loadSecurityConfig(),
		Emergency: loadEmergencyConfig(),
		Maps:      loadMapsConfig(),
		Archive:   loadArchiveConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the orchestration cannot run with.
func (c *Config) Validate() error {
	e := c.Emergency
	if e.DefaultCountdown < 0 || e.AutoTriggerCountdown < 0 {
		return fmt.Errorf("countdown must be non-negative")
	}
	if e.EscalationTimeout <= 0 {
		return fmt.Errorf("EMERGENCY_ESCALATION_TIMEOUT must be positive")
	}
	if e.FollowUpInterval <= 0 {
		return fmt.Errorf("EMERGENCY_FOLLOW_UP_INTERVAL must be positive")
	}
	if e.MaxFollowUps < 0 {
		return fmt.Errorf("EMERGENCY_MAX_FOLLOW_UPS must be non-negative")
	}
	if e.DispatchWorkers <= 0 {
		return fmt.Errorf("EMERGENCY_DISPATCH_WORKERS must be positive")
	}
	switch e.StorageDriver {
	case StorageDriverMongo, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", e.StorageDriver)
	}
	if a := c.Archive; a.Enabled {
		switch a.Provider {
		case ArchiveProviderS3, ArchiveProviderGCS:
			if a.Bucket == "" {
				return fmt.Errorf("ARCHIVE_BUCKET is required for the %s archive", a.Provider)
			}
		case ArchiveProviderLocal:
		default:
			return fmt.Errorf("unknown archive provider %q", a.Provider)
		}
	}
	if err := c.SMS.validate(); err != nil {
		return err
	}
	if err := c.Push.APNS.validate(); err != nil {
		return err
	}
	if c.Security.AuthEnabled && c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when auth is enabled")
	}
	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:      getEnv("APP_NAME", "SOSAlert"),
		Version:   getEnv("APP_VERSION", "1.0.0"),
		Port:      getEnvAsInt("APP_PORT", 8080),
		BaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),
		Debug:     getEnvAsBool("APP_DEBUG", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		AuthEnabled:        getEnvAsBool("AUTH_ENABLED", false),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
		WebhookToken:       getEnv("WEBHOOK_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}

func IsTest() bool {
	return getEnv("APP_ENV", "development") == "test"
}
