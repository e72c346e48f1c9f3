package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "THOUGHTS"
	defaultHTTPAddress   = "127.0.0.1:8080"
	defaultDatabasePath  = "thoughts.db"
	defaultLogLevel      = "info"
	defaultCreatorID     = 1
	defaultSessionTTLMin = 30
)

// AppConfig captures runtime configuration for the thoughts service.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	UnlockSecret  string
	SigningSecret string
	SessionTTL    time.Duration
	CreatorID     int64
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMin)
	configViper.SetDefault("creator.id", defaultCreatorID)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		UnlockSecret:  configViper.GetString("unlock.secret"),
		SigningSecret: configViper.GetString("session.signing_secret"),
		SessionTTL:    time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		CreatorID:     configViper.GetInt64("creator.id"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.UnlockSecret) == "" {
		return fmt.Errorf("unlock.secret is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if c.CreatorID <= 0 {
		return fmt.Errorf("creator.id must be positive")
	}
	return nil
}
