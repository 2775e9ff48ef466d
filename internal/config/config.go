package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Gateway modes.
const (
	ModeSimulator  = "simulator"
	ModeDirectLine = "directline"
)

// Environment variables that override the file.
const (
	EnvUserID           = "HEALTHCHAT_USER_ID"
	EnvUserName         = "HEALTHCHAT_USER_NAME"
	EnvGatewayMode      = "HEALTHCHAT_GATEWAY_MODE"
	EnvDirectLineToken  = "HEALTHCHAT_DIRECTLINE_TOKEN"
	EnvDirectLineSecret = "HEALTHCHAT_DIRECTLINE_SECRET"
	EnvDirectLineDomain = "HEALTHCHAT_DIRECTLINE_DOMAIN"
)

var (
	ErrUserIDRequired     = errors.New("user_id is required")
	ErrCredentialRequired = errors.New("gateway.token or gateway.secret is required in directline mode")
)

// Duration is a time.Duration that reads and writes as "90s", "1h" etc.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the global ~/.healthchat/config.toml.
type Config struct {
	DefaultProfile string            `toml:"default_profile"`
	UserID         string            `toml:"user_id"`
	UserName       string            `toml:"user_name"`
	LogLevel       string            `toml:"log_level"`
	Gateway        GatewayConfig     `toml:"gateway"`
	Persistence    PersistenceConfig `toml:"persistence"`
}

// GatewayConfig selects and configures the bot transport.
type GatewayConfig struct {
	Mode         string   `toml:"mode"`
	Domain       string   `toml:"domain,omitempty"`
	Token        string   `toml:"token,omitempty"`
	Secret       string   `toml:"secret,omitempty"`
	WebSocket    bool     `toml:"websocket"`
	PollInterval Duration `toml:"poll_interval"`
}

// PersistenceConfig controls conversation history storage.
type PersistenceConfig struct {
	Enabled         bool     `toml:"enabled"`
	CleanupInterval Duration `toml:"cleanup_interval"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		UserName: "User",
		LogLevel: "info",
		Gateway: GatewayConfig{
			Mode:         ModeSimulator,
			WebSocket:    true,
			PollInterval: Duration{time.Second},
		},
		Persistence: PersistenceConfig{
			Enabled:         true,
			CleanupInterval: Duration{time.Hour},
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns nil
// and an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that falls back to Default when the file does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadEnvFile loads KEY=value pairs from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.UserID, EnvUserID)
	set(&c.UserName, EnvUserName)
	set(&c.Gateway.Mode, EnvGatewayMode)
	set(&c.Gateway.Token, EnvDirectLineToken)
	set(&c.Gateway.Secret, EnvDirectLineSecret)
	set(&c.Gateway.Domain, EnvDirectLineDomain)
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrUserIDRequired
	}
	switch c.Gateway.Mode {
	case ModeSimulator:
	case ModeDirectLine:
		if c.Gateway.Token == "" && c.Gateway.Secret == "" {
			return ErrCredentialRequired
		}
	default:
		return fmt.Errorf("unknown gateway mode %q (want %s or %s)", c.Gateway.Mode, ModeSimulator, ModeDirectLine)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
