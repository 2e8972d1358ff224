package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var ErrConfigFileNotFound = errors.New("could not find config file in any config path")

// Config represents the entire application configuration.
type Config struct {
	Bot          Bot          `koanf:"bot"`
	Captcha      Captcha      `koanf:"captcha"`
	PostgreSQL   PostgreSQL   `koanf:"postgresql"`
	Logging      Logging      `koanf:"logging"`
	Verification Verification `koanf:"verification"`
}

// Bot contains Discord connection and operator settings.
type Bot struct {
	// Discord bot token.
	Token string `koanf:"token"`
	// User ID that receives DM escalations for unexpected errors. Zero disables escalation.
	OperatorID uint64 `koanf:"operator_id"`
	// Command prefix stored for newly joined guilds.
	DefaultPrefix string `koanf:"default_prefix"`
	// Debug mode propagates unexpected session errors instead of swallowing them.
	Debug bool `koanf:"debug"`
}

// Captcha contains settings for the remote challenge service.
type Captcha struct {
	// Base URL of the captcha service, e.g. "http://localhost:8090".
	BaseURL string `koanf:"base_url"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
}

// PostgreSQL contains database connection settings.
type PostgreSQL struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"db_name"`
}

// Logging contains log output settings.
type Logging struct {
	// Directory where log session directories are created.
	Dir string `koanf:"dir"`
	// Zap log level: debug, info, warn, error.
	Level string `koanf:"level"`
	// Number of old log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// Verification contains tunables for the verification flow.
type Verification struct {
	// Seconds a session waits for a user response before timing out.
	ResponseTimeout int `koanf:"response_timeout"`
	// Maximum captcha attempts before a session is abandoned.
	MaxAttempts int `koanf:"max_attempts"`
}

// defaults returns the configuration used when fields are absent from the file.
func defaults() Config {
	return Config{
		Bot: Bot{
			DefaultPrefix: "j!",
		},
		Captcha: Captcha{
			BaseURL:        "http://localhost:8090",
			RequestTimeout: 5000,
		},
		PostgreSQL: PostgreSQL{
			Host:   "localhost",
			Port:   5432,
			User:   "postgres",
			DBName: "janus",
		},
		Logging: Logging{
			Dir:           "logs",
			Level:         "info",
			MaxLogsToKeep: 10,
		},
		Verification: Verification{
			ResponseTimeout: 60,
			MaxAttempts:     5,
		},
	}
}

// LoadConfig reads config.toml from the first search path that has one and
// unmarshals it over the built-in defaults.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".",
		"config",
		homeDir + "/.janus",
		"/etc/janus",
	}

	loaded := false

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/config.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			loaded = true
			break
		}
	}

	if !loaded {
		return nil, fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	config := defaults()
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
