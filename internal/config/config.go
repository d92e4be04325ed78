package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application. It is constructed
// once at process start and passed by reference into every component
// constructor; nothing reads configuration ambiently after boot.
type Config struct {
	Title       string `mapstructure:"title"`
	APIPort     int    `mapstructure:"api_port"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	// DevModeBypass disables bearer-token verification when Environment
	// is DEV. Never honored outside DEV.
	DevModeBypass bool `mapstructure:"dev_mode_bypass"`

	// RabbitURL is the broker connection string (amqp://...).
	RabbitURL string `mapstructure:"rabbit_url"`

	// RedisURL is the job runner's broker and result-store (redis://...).
	RedisURL string `mapstructure:"redis_url"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	TextSidecar struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"text_sidecar"`

	Auth struct {
		Issuer   string `mapstructure:"issuer"`
		ClientID string `mapstructure:"client_id"`
	} `mapstructure:"auth"`
}

var (
	ErrMissingRabbitURL = errors.New("rabbit_url is required")
	ErrMissingRedisURL  = errors.New("redis_url is required")
	ErrMissingDBHost    = errors.New("db.host is required")
)

// LoadConfig loads the configuration from an optional config file and the
// environment. Environment variables win; a missing config file is not an
// error, a missing required value is.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("title", "Workflows API")
	v.SetDefault("api_port", 8080)
	v.SetDefault("environment", "DEV")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")

	// AutomaticEnv alone does not surface env-only keys through Unmarshal,
	// so bind each key explicitly.
	for _, key := range []string{
		"title", "api_port", "environment", "log_level", "log_format",
		"dev_mode_bypass", "rabbit_url", "redis_url",
		"db.host", "db.port", "db.user", "db.password", "db.name",
		"db.sslmode", "text_sidecar.url", "auth.issuer", "auth.client_id",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that every environment-level collaborator is configured.
// The process must fail fast at startup rather than run partially degraded.
func (c *Config) Validate() error {
	if c.RabbitURL == "" {
		return ErrMissingRabbitURL
	}
	if c.RedisURL == "" {
		return ErrMissingRedisURL
	}
	if c.DB.Host == "" {
		return ErrMissingDBHost
	}
	return nil
}

// PostgresDSN renders the connection string for pgxpool.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// normalizeIssuer ensures the provided issuer string is in a predictable
// form. It removes any trailing slash and leaves the scheme and path intact
// so users can paste the full URL from their IdP admin console.
func normalizeIssuer(input string) string {
	iss := strings.TrimSpace(input)
	return strings.TrimRight(iss, "/")
}
