package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling and env variable binding.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisDB     int    `mapstructure:"REDIS_DB"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// JWTSecretKey signs credentials, ChannelSecretKey signs channel grants.
	// They are independent so rotating one does not invalidate the other.
	JWTSecretKey     string `mapstructure:"JWT_SECRET_KEY"`
	ChannelSecretKey string `mapstructure:"CHANNEL_SECRET_KEY"`
	ChannelAppKey    string `mapstructure:"CHANNEL_APP_KEY"`
	TokenIssuer      string `mapstructure:"TOKEN_ISSUER"`

	SessionTTLMin    int `mapstructure:"SESSION_TTL_MIN"`
	CredentialTTLMin int `mapstructure:"CREDENTIAL_TTL_MIN"`
	SessionSweepMin  int `mapstructure:"SESSION_SWEEP_MIN"`

	CookieName   string `mapstructure:"COOKIE_NAME"`
	CookieSecure bool   `mapstructure:"COOKIE_SECURE"`
}

// SessionTTL returns the login session TTL as a duration.
func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// CredentialTTL returns the bearer credential TTL as a duration.
func (c *ServerConfig) CredentialTTL() time.Duration {
	return time.Duration(c.CredentialTTLMin) * time.Minute
}

// SessionSweepInterval returns how often expired sessions are reclaimed.
func (c *ServerConfig) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepMin) * time.Minute
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/qrlogin/")
	v.AddConfigPath("$HOME/.qrlogin")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/qrlogin_dev")
	v.SetDefault("MONGO_DB_NAME", "qrlogin_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("JWT_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("CHANNEL_SECRET_KEY", "a_very_secret_channel_key_change_me")
	v.SetDefault("CHANNEL_APP_KEY", "qrlogin-local")
	v.SetDefault("TOKEN_ISSUER", "qrlogin")
	v.SetDefault("SESSION_TTL_MIN", 5)
	v.SetDefault("CREDENTIAL_TTL_MIN", 60)
	v.SetDefault("SESSION_SWEEP_MIN", 10)
	v.SetDefault("COOKIE_NAME", "qrlogin_credential")
	v.SetDefault("COOKIE_SECURE", false)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
