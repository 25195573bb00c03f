package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server             ServerConfig             `mapstructure:"server"`
	Auth               AuthConfig               `mapstructure:"auth"`
	CORS               CORSConfig               `mapstructure:"cors"`
	RateLimit          RateLimitConfig          `mapstructure:"rate_limit"`
	Redis              RedisConfig              `mapstructure:"redis"`
	Supabase           SupabaseConfig           `mapstructure:"supabase"`
	Queue              QueueConfig              `mapstructure:"queue"`
	Dispatch           DispatchConfig           `mapstructure:"dispatch"`
	SMS                SMSConfig                `mapstructure:"sms"`
	Email              EmailConfig              `mapstructure:"email"`
	RecipientRateLimit RecipientRateLimitConfig `mapstructure:"recipient_rate_limit"`
	Reminders          RemindersConfig          `mapstructure:"reminders"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
	TimeoutSec  int `mapstructure:"timeout_sec"`
}

// Timeout bounds a single dispatch task.
func (q QueueConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSec) * time.Second
}

// DispatchConfig holds the duplicate-dispatch guard settings.
type DispatchConfig struct {
	SMSDebounceMs   int    `mapstructure:"sms_debounce_ms"`
	EmailDebounceMs int    `mapstructure:"email_debounce_ms"`
	RetentionMs     int    `mapstructure:"retention_ms"`
	DedupBackend    string `mapstructure:"dedup_backend"` // memory | redis
}

// SMSDebounce is the debounce window of the SMS channel.
func (d DispatchConfig) SMSDebounce() time.Duration {
	return time.Duration(d.SMSDebounceMs) * time.Millisecond
}

// EmailDebounce is the debounce window of the email channel.
func (d DispatchConfig) EmailDebounce() time.Duration {
	return time.Duration(d.EmailDebounceMs) * time.Millisecond
}

// Retention is how long dedup entries are kept.
func (d DispatchConfig) Retention() time.Duration {
	return time.Duration(d.RetentionMs) * time.Millisecond
}

// SMSConfig holds SMS gateway and message settings.
type SMSConfig struct {
	FunctionURL        string `mapstructure:"function_url"` // defaults to <supabase.url>/functions/v1/send-sms
	DefaultCountryCode string `mapstructure:"default_country_code"`
	MaxLength          int    `mapstructure:"max_length"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
}

// Timeout is the HTTP timeout of a gateway call.
func (s SMSConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// EmailConfig holds email provider settings.
type EmailConfig struct {
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	BaseURL     string `mapstructure:"base_url"`
	Footer      string `mapstructure:"footer"`
}

// RecipientRateLimitConfig holds per-recipient SMS cap settings. Zero
// disables the cap.
type RecipientRateLimitConfig struct {
	MaxPerHour int `mapstructure:"max_per_hour"`
}

// RemindersConfig holds reminder scanner settings.
type RemindersConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	IntervalSec int    `mapstructure:"interval_sec"`
	Timezone    string `mapstructure:"timezone"`
}

// Interval is the scanner period.
func (r RemindersConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSec) * time.Second
}

// Location loads the configured time zone.
func (r RemindersConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the BOOKINGFAST_ prefix and underscore separators.
// Example: BOOKINGFAST_SMS_DEFAULT_COUNTRY_CODE overrides sms.default_country_code.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	_ = godotenv.Load()

	v.SetEnvPrefix("BOOKINGFAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Comma-separated lists from env vars
	cfg.Auth.APIKeys = splitList(v.GetString("auth.api_keys"), cfg.Auth.APIKeys)
	cfg.CORS.AllowedOrigins = splitList(v.GetString("cors.allowed_origins"), cfg.CORS.AllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("auth.api_keys", "")
	v.SetDefault("cors.allowed_origins", "")
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"})
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.service_key", "")
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 3)
	v.SetDefault("queue.timeout_sec", 600)
	v.SetDefault("dispatch.sms_debounce_ms", 5000)
	v.SetDefault("dispatch.email_debounce_ms", 5000)
	v.SetDefault("dispatch.retention_ms", 60000)
	v.SetDefault("dispatch.dedup_backend", "redis")
	v.SetDefault("sms.function_url", "")
	v.SetDefault("sms.default_country_code", "33")
	v.SetDefault("sms.max_length", 160)
	v.SetDefault("sms.timeout_sec", 15)
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.from_address", "")
	v.SetDefault("email.from_name", "BookingFast")
	v.SetDefault("email.base_url", "https://api.resend.com")
	v.SetDefault("email.footer", "")
	v.SetDefault("recipient_rate_limit.max_per_hour", 0)
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval_sec", 300) // 5 minutes
	v.SetDefault("reminders.timezone", "Europe/Paris")
}

func (c *Config) validate() error {
	switch c.Dispatch.DedupBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("dispatch.dedup_backend must be memory or redis, got %q", c.Dispatch.DedupBackend)
	}
	if c.SMS.MaxLength <= 0 {
		return fmt.Errorf("sms.max_length must be positive")
	}
	if _, err := c.Reminders.Location(); err != nil {
		return err
	}
	return nil
}

// splitList prefers the comma-separated raw value of an env var over the
// decoded YAML sequence, and trims every entry.
func splitList(raw string, decoded []string) []string {
	parts := decoded
	if raw != "" {
		parts = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
