package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config carries every environment-level setting. Only API_BASE_URL matters
// to the protocol; the rest selects where and how loudly the client runs.
type Config struct {
	APIBaseURL     string `mapstructure:"API_BASE_URL" validate:"required,url"`
	StorageBackend string `mapstructure:"STORAGE_BACKEND" validate:"required,oneof=sqlite pebble redis"`
	DatabasePath   string `mapstructure:"DATABASE_PATH" validate:"required"`
	RedisAddr      string `mapstructure:"REDIS_ADDR" validate:"required_if=StorageBackend redis,omitempty,hostname_port"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads settings from a local .env file when present, the
// environment otherwise, with sensible defaults throughout.
func LoadConfig() (*Config, error) {
	viper.SetDefault("API_BASE_URL", "http://localhost:8000")
	viper.SetDefault("STORAGE_BACKEND", "sqlite")
	viper.SetDefault("DATABASE_PATH", defaultDatabasePath())
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("LOG_LEVEL", "INFO")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks the struct tags and turns failures into one readable
// error instead of the library's raw field dump.
func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("unexpected error during config validation: %w", err)
	}
	var messages []string
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' failed on the '%s' rule", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}

// defaultDatabasePath keeps history under the user's home directory,
// falling back to the working directory when home is unknown.
func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("data", "perplexigo.db")
	}
	return filepath.Join(home, ".perplexigo", "threads.db")
}
