package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Reconcile ReconcileConfig
	Notes     NotesConfig
	Reports   ReportsConfig
	Cron      CronConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReconcileConfig tunes the class/payment reconciliation services.
type ReconcileConfig struct {
	CacheEnabled          bool
	CacheTTL              time.Duration
	Timezone              string
	DefaultPricePerClass  decimal.Decimal
	DuplicatePaymentsWarn bool
}

// Location resolves the configured timezone, falling back to UTC.
func (c ReconcileConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotesConfig controls signed download links for unlocked notes.
type NotesConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// ReportsConfig configures unpaid balance report generation.
type ReportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// CronConfig schedules background maintenance jobs.
type CronConfig struct {
	Enabled         bool
	AutoLinkSpec    string
	CleanupSpec     string
	AutoLinkTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const (
	devReportsSecret = "dev_reports_secret"
	devNotesSecret   = "dev_notes_secret"
)

// Validate reports every setting that would make the process misbehave. Production
// additionally refuses the development signing secrets.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX %q must start with /", c.APIPrefix))
	}
	if c.Reports.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("REPORTS_WORKER_CONCURRENCY must be at least 1"))
	}
	if c.Reports.WorkerRetries < 0 {
		errs = append(errs, errors.New("REPORTS_WORKER_RETRIES must not be negative"))
	}
	if c.Reports.StorageDir == "" || c.Notes.StorageDir == "" {
		errs = append(errs, errors.New("REPORTS_STORAGE_DIR and NOTES_STORAGE_DIR are required"))
	}
	if c.Cron.Enabled && c.Cron.AutoLinkSpec == "" && c.Cron.CleanupSpec == "" {
		errs = append(errs, errors.New("ENABLE_CRON set but AUTOLINK_CRON and CLEANUP_CRON are empty"))
	}
	if c.Env == EnvProduction {
		if c.Reports.SignedURLSecret == "" || c.Reports.SignedURLSecret == devReportsSecret {
			errs = append(errs, errors.New("REPORTS_SIGNED_URL_SECRET must be set in production"))
		}
		if c.Notes.SignedURLSecret == "" || c.Notes.SignedURLSecret == devNotesSecret {
			errs = append(errs, errors.New("NOTES_SIGNED_URL_SECRET must be set in production"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Reconcile = ReconcileConfig{
		CacheEnabled:          v.GetBool("ENABLE_RECONCILE_CACHE"),
		CacheTTL:              parseDuration(v.GetString("RECONCILE_CACHE_TTL"), 5*time.Minute),
		Timezone:              v.GetString("TIMEZONE"),
		DefaultPricePerClass:  parseDecimal(v.GetString("DEFAULT_PRICE_PER_CLASS"), decimal.Zero),
		DuplicatePaymentsWarn: v.GetBool("WARN_DUPLICATE_PAYMENTS"),
	}

	cfg.Notes = NotesConfig{
		StorageDir:      v.GetString("NOTES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("NOTES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("NOTES_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	cfg.Cron = CronConfig{
		Enabled:         v.GetBool("ENABLE_CRON"),
		AutoLinkSpec:    v.GetString("AUTOLINK_CRON"),
		CleanupSpec:     v.GetString("CLEANUP_CRON"),
		AutoLinkTimeout: parseDuration(v.GetString("AUTOLINK_TIMEOUT"), 2*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutor_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_RECONCILE_CACHE", true)
	v.SetDefault("RECONCILE_CACHE_TTL", "5m")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_PRICE_PER_CLASS", "0")
	v.SetDefault("WARN_DUPLICATE_PAYMENTS", true)

	v.SetDefault("NOTES_STORAGE_DIR", "./notes")
	v.SetDefault("NOTES_SIGNED_URL_SECRET", devNotesSecret)
	v.SetDefault("NOTES_SIGNED_URL_TTL", "30m")

	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", devReportsSecret)
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_CRON", false)
	v.SetDefault("AUTOLINK_CRON", "@daily")
	v.SetDefault("CLEANUP_CRON", "@hourly")
	v.SetDefault("AUTOLINK_TIMEOUT", "2m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseDecimal(raw string, fallback decimal.Decimal) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
