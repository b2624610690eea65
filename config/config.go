package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Host         string        `toml:"host"`
	Room         string        `toml:"room"`
	SessionFile  string        `toml:"session_file"`
	MasterKeyEnv string        `toml:"master_key_env"`
	Login        LoginConfig   `toml:"login"`
	Log          LogConfig     `toml:"log"`
	Metrics      MetricsConfig `toml:"metrics"`
}

type LoginConfig struct {
	Service   string `toml:"service"`
	ExpiresIn int    `toml:"expires_in"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func Default() *Config {
	return &Config{
		SessionFile:  filepath.Join(DataDir(), "session"),
		MasterKeyEnv: "RCCTL_MASTER_KEY",
		Login: LoginConfig{
			Service:   "google",
			ExpiresIn: 3600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.SessionFile == "" {
		cfg.SessionFile = filepath.Join(DataDir(), "session")
	}
	cfg.SessionFile = expandHome(cfg.SessionFile)

	return cfg, nil
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	u, err := url.Parse(c.Host)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid host %q", c.Host)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: host scheme must be http or https, got %q", u.Scheme)
	}
	if c.Room == "" {
		return fmt.Errorf("config: room is required")
	}
	if c.Login.ExpiresIn < 0 {
		return fmt.Errorf("config: login.expires_in must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// MasterKey reads the session encryption key from the configured
// environment variable.
func (c *Config) MasterKey() string {
	if c.MasterKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.MasterKeyEnv)
}

func DataDir() string {
	if dir := os.Getenv("RCCTL_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rcctl"
	}
	return filepath.Join(home, ".rcctl")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "rcctl.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
