package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "TASKNOTIFY"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultAllowedOrigins = "http://localhost:4200,http://localhost:3000"
	defaultDatabasePath   = "tasknotify.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultIssuer         = "tasknotify-auth"
	defaultAudience       = "tasknotify-api"
	defaultTokenTTL       = 60
	defaultMaxPerUser     = 50
	defaultSweepInterval  = time.Hour
	defaultPurgeHour      = 2
	defaultPurgeAgeDays   = 30
	maxPurgeAgeDays       = 36500
	defaultWriteTimeout   = 5 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string

	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	TokenTTL      time.Duration

	MaxNotificationsPerUser int
	Cleanup                 CleanupConfig

	RealtimeWriteTimeout time.Duration
	RealtimeIdleTimeout  time.Duration
}

// CleanupConfig describes the scheduled maintenance jobs.
type CleanupConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	PurgeHour     int
	PurgeAgeDays  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("notification.max_per_user", defaultMaxPerUser)
	configViper.SetDefault("notification.cleanup.enabled", true)
	configViper.SetDefault("notification.cleanup.sweep_interval", defaultSweepInterval)
	configViper.SetDefault("notification.cleanup.purge_hour", defaultPurgeHour)
	configViper.SetDefault("notification.cleanup.purge_age_days", defaultPurgeAgeDays)
	configViper.SetDefault("realtime.write_timeout", defaultWriteTimeout)
	configViper.SetDefault("realtime.idle_timeout", defaultIdleTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:             configViper.GetString("http.address"),
		AllowedOrigins:          splitList(configViper.GetString("http.allowed_origins")),
		DatabasePath:            configViper.GetString("database.path"),
		LogLevel:                configViper.GetString("log.level"),
		LogFormat:               configViper.GetString("log.format"),
		SigningSecret:           configViper.GetString("auth.signing_secret"),
		TokenIssuer:             configViper.GetString("auth.issuer"),
		TokenAudience:           configViper.GetString("auth.audience"),
		TokenTTL:                time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		MaxNotificationsPerUser: configViper.GetInt("notification.max_per_user"),
		Cleanup: CleanupConfig{
			Enabled:       configViper.GetBool("notification.cleanup.enabled"),
			SweepInterval: configViper.GetDuration("notification.cleanup.sweep_interval"),
			PurgeHour:     configViper.GetInt("notification.cleanup.purge_hour"),
			PurgeAgeDays:  configViper.GetInt("notification.cleanup.purge_age_days"),
		},
		RealtimeWriteTimeout: configViper.GetDuration("realtime.write_timeout"),
		RealtimeIdleTimeout:  configViper.GetDuration("realtime.idle_timeout"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MaxNotificationsPerUser <= 0 {
		return fmt.Errorf("notification.max_per_user must be positive, got %d", c.MaxNotificationsPerUser)
	}
	if c.Cleanup.SweepInterval <= 0 {
		return fmt.Errorf("notification.cleanup.sweep_interval must be positive")
	}
	if c.Cleanup.PurgeHour < 0 || c.Cleanup.PurgeHour > 23 {
		return fmt.Errorf("notification.cleanup.purge_hour must be between 0 and 23, got %d", c.Cleanup.PurgeHour)
	}
	if c.Cleanup.PurgeAgeDays <= 0 || c.Cleanup.PurgeAgeDays > maxPurgeAgeDays {
		return fmt.Errorf("notification.cleanup.purge_age_days must be between 1 and %d, got %d", maxPurgeAgeDays, c.Cleanup.PurgeAgeDays)
	}
	if c.RealtimeWriteTimeout <= 0 {
		return fmt.Errorf("realtime.write_timeout must be positive")
	}
	if c.RealtimeIdleTimeout <= 0 {
		return fmt.Errorf("realtime.idle_timeout must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
