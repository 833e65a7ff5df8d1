package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slotbook/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app" toml:"app"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Redis        RedisConfig        `yaml:"redis" toml:"redis"`
	Verification VerificationConfig `yaml:"verification" toml:"verification"`
	Schedule     ScheduleConfig     `yaml:"schedule" toml:"schedule"`
	Meeting      MeetingConfig      `yaml:"meeting" toml:"meeting"`
	SMTP         SMTPConfig         `yaml:"smtp" toml:"smtp"`
	Notify       NotifyConfig       `yaml:"notify" toml:"notify"`
	Kafka        KafkaConfig        `yaml:"kafka" toml:"kafka"`
	Google       GoogleConfig       `yaml:"google" toml:"google"`
	Outbox       OutboxConfig       `yaml:"outbox" toml:"outbox"`
	Backup       BackupConfig       `yaml:"backup" toml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" toml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	API          APIConfig          `yaml:"api" toml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Environment string `yaml:"environment" toml:"environment"`
	Version     string `yaml:"version" toml:"version"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3" (default) or "postgres".
	Driver       string `yaml:"driver" toml:"driver"`
	Path         string `yaml:"path" toml:"path"`
	DSN          string `yaml:"dsn" toml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"`
}

type RedisConfig struct {
	Address  string `yaml:"address" toml:"address"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	PoolSize int    `yaml:"pool_size" toml:"pool_size"`
}

type VerificationConfig struct {
	// Store is "redis", "database" or "memory". Empty picks redis when configured.
	Store       string        `yaml:"store" toml:"store"`
	CodeTTL     time.Duration `yaml:"code_ttl" toml:"code_ttl"`
	VerifiedTTL time.Duration `yaml:"verified_ttl" toml:"verified_ttl"`
	SendLimit   int           `yaml:"send_limit" toml:"send_limit"`
	SendWindow  time.Duration `yaml:"send_window" toml:"send_window"`
}

type ScheduleConfig struct {
	WeekdaySlots    []string      `yaml:"weekday_slots" toml:"weekday_slots"`
	WeekendSlots    []string      `yaml:"weekend_slots" toml:"weekend_slots"`
	Timezone        string        `yaml:"timezone" toml:"timezone"`
	MeetingDuration time.Duration `yaml:"meeting_duration" toml:"meeting_duration"`
	MaxBookingDays  int           `yaml:"max_booking_days" toml:"max_booking_days"`
}

// Location resolves Timezone, falling back to UTC.
func (s ScheduleConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type MeetingConfig struct {
	// Provider is "zoom" or "placeholder".
	Provider           string        `yaml:"provider" toml:"provider"`
	Timeout            time.Duration `yaml:"timeout" toml:"timeout"`
	PlaceholderBaseURL string        `yaml:"placeholder_base_url" toml:"placeholder_base_url"`
	Zoom               ZoomConfig    `yaml:"zoom" toml:"zoom"`
}

type ZoomConfig struct {
	AccountID    string `yaml:"account_id" toml:"account_id"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	TokenURL     string `yaml:"token_url" toml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url" toml:"api_base_url"`
}

type SMTPConfig struct {
	Host     string        `yaml:"host" toml:"host"`
	Port     int           `yaml:"port" toml:"port"`
	Username string        `yaml:"username" toml:"username"`
	Password string        `yaml:"password" toml:"password"`
	From     string        `yaml:"from" toml:"from"`
	FromName string        `yaml:"from_name" toml:"from_name"`
	SSL      bool          `yaml:"ssl" toml:"ssl"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
}

type NotifyConfig struct {
	Brand         string         `yaml:"brand" toml:"brand"`
	OperatorEmail string         `yaml:"operator_email" toml:"operator_email"`
	Telegram      TelegramConfig `yaml:"telegram" toml:"telegram"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" toml:"bot_token"`
	ChatID   int64  `yaml:"chat_id" toml:"chat_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" toml:"brokers"`
	Topic   string   `yaml:"topic" toml:"topic"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file" toml:"credentials_file"`
	BookingsSpreadsheetID string `yaml:"bookings_spreadsheet_id" toml:"bookings_spreadsheet_id"`
}

type OutboxConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	PollInterval  time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	MaxRetries    int           `yaml:"max_retries" toml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" toml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" toml:"backoff_factor"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	Schedule      string `yaml:"schedule" toml:"schedule"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
	StoragePath   string `yaml:"storage_path" toml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled" toml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port" toml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	Output   string `yaml:"output" toml:"output"`
	FilePath string `yaml:"file_path" toml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http" toml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc" toml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled" toml:"enabled"`
	Port       int          `yaml:"port" toml:"port"`
	Reflection bool         `yaml:"reflection" toml:"reflection"`
	TLS        APITLSConfig `yaml:"tls" toml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled" toml:"enabled"`
	CertFile          string `yaml:"cert_file" toml:"cert_file"`
	KeyFile           string `yaml:"key_file" toml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file" toml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert" toml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled" toml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key" toml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra" toml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys" toml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key" toml:"key"`
	Extra       string   `yaml:"extra" toml:"extra"`
	Name        string   `yaml:"name" toml:"name"`
	Permissions []string `yaml:"permissions" toml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

// Load reads the config file, expanding ${VARS} from the environment and an optional .env.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if _, err := toml.Decode(expandedData, &config); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Verification.Store {
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("verification store redis requires redis.address")
		}
	case "database", "memory":
	default:
		return fmt.Errorf("unsupported verification store %q", c.Verification.Store)
	}

	if err := models.ValidateSlots(c.Schedule.WeekdaySlots); err != nil {
		return fmt.Errorf("schedule.weekday_slots: %w", err)
	}
	if err := models.ValidateSlots(c.Schedule.WeekendSlots); err != nil {
		return fmt.Errorf("schedule.weekend_slots: %w", err)
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}

	switch c.Meeting.Provider {
	case "placeholder":
	case "zoom":
		z := c.Meeting.Zoom
		if z.AccountID == "" || z.ClientID == "" || z.ClientSecret == "" {
			return errors.New("zoom credentials are required when meeting.provider is zoom")
		}
	default:
		return fmt.Errorf("unsupported meeting provider %q", c.Meeting.Provider)
	}

	return ValidateAPIKeys(c.API.Auth)
}

func ValidateAPIKeys(auth APIAuthConfig) error {
	if auth.Enabled && len(auth.APIKeys) == 0 {
		return errors.New("api.auth.enabled requires at least one api key")
	}
	keys := make(map[string]bool)
	for _, k := range auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key %q has empty key", k.Name)
		}
		if keys[k.Key] {
			return fmt.Errorf("duplicate api key for %q", k.Name)
		}
		keys[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "slotbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Verification.Store == "" {
		if c.Redis.Address != "" {
			c.Verification.Store = "redis"
		} else {
			c.Verification.Store = "database"
		}
	}
	if c.Verification.CodeTTL == 0 {
		c.Verification.CodeTTL = models.DefaultCodeTTL
	}
	if c.Verification.VerifiedTTL == 0 {
		c.Verification.VerifiedTTL = models.DefaultVerifiedTTL
	}
	if c.Verification.SendLimit == 0 {
		c.Verification.SendLimit = models.DefaultSendLimit
	}
	if c.Verification.SendWindow == 0 {
		c.Verification.SendWindow = models.DefaultSendWindow
	}

	if c.Schedule.WeekdaySlots == nil {
		c.Schedule.WeekdaySlots = append([]string(nil), models.DefaultWeekdaySlots...)
	}
	if c.Schedule.WeekendSlots == nil {
		c.Schedule.WeekendSlots = append([]string(nil), models.DefaultWeekendSlots...)
	}
	if c.Schedule.MeetingDuration == 0 {
		c.Schedule.MeetingDuration = models.DefaultMeetingDuration
	}
	if c.Schedule.MaxBookingDays == 0 {
		c.Schedule.MaxBookingDays = models.DefaultMaxBookingDays
	}

	if c.Meeting.Provider == "" {
		if c.Meeting.Zoom.ClientID != "" {
			c.Meeting.Provider = "zoom"
		} else {
			c.Meeting.Provider = "placeholder"
		}
	}
	if c.Meeting.Timeout == 0 {
		c.Meeting.Timeout = 10 * time.Second
	}
	if c.Meeting.PlaceholderBaseURL == "" {
		c.Meeting.PlaceholderBaseURL = "https://zoom.us/j/"
	}
	if c.Meeting.Zoom.TokenURL == "" {
		c.Meeting.Zoom.TokenURL = "https://zoom.us/oauth/token"
	}
	if c.Meeting.Zoom.APIBaseURL == "" {
		c.Meeting.Zoom.APIBaseURL = "https://api.zoom.us/v2"
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 465
		c.SMTP.SSL = true
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	if c.SMTP.FromName == "" {
		c.SMTP.FromName = "Booking"
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 15 * time.Second
	}
	if c.Notify.Brand == "" {
		c.Notify.Brand = c.App.Name
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "slotbook.bookings"
	}

	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 2 * time.Second
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
}
