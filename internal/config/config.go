package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "PETDONOR"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "petdonor.db"
	defaultLogLevel     = "info"
	defaultTokenTTLMin  = 30
	defaultBcryptCost   = 12
	defaultTokenIssuer  = "petdonor-auth"
	defaultTokenAud     = "petdonor-api"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenTTL      time.Duration
	TokenIssuer   string
	TokenAudience string
	BcryptCost    int

	// VK social login is disabled when the service token is empty.
	VKServiceToken string
	VKExchangeURL  string
	VKProfileURL   string
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
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.audience", defaultTokenAud)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		TokenIssuer:    configViper.GetString("token.issuer"),
		TokenAudience:  configViper.GetString("token.audience"),
		BcryptCost:     configViper.GetInt("auth.bcrypt_cost"),
		VKServiceToken: configViper.GetString("vk.service_token"),
		VKExchangeURL:  configViper.GetString("vk.exchange_url"),
		VKProfileURL:   configViper.GetString("vk.profile_url"),
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
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}

// SocialLoginEnabled reports whether VK social login can be wired.
func (c AppConfig) SocialLoginEnabled() bool {
	return strings.TrimSpace(c.VKServiceToken) != ""
}
