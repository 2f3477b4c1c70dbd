package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address         string        `mapstructure:"address"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwtSecret"`
		TokenTTL  time.Duration `mapstructure:"tokenTTL"`
	} `mapstructure:"auth"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Gateway struct {
		MaxMessageLength int `mapstructure:"maxMessageLength"`
	} `mapstructure:"gateway"`
}

// Load reads configuration from an optional config file and TOWHEE_*
// environment variables, falling back to defaults.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("auth.jwtSecret", "towhee-dev-secret-change-me")
	v.SetDefault("auth.tokenTTL", "24h")
	v.SetDefault("database.path", "towhee.db")
	v.SetDefault("gateway.maxMessageLength", 2000)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOWHEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Warn("config file not found, relying on defaults and env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
