package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	NATS       NATSConfig       `yaml:"nats"`
	Web        WebConfig        `yaml:"web"`
	Vault      VaultConfig      `yaml:"vault"`
	Gate       GateConfig       `yaml:"gate"`
	Lockdown   LockdownConfig   `yaml:"lockdown"`
	Scratchpad ScratchpadConfig `yaml:"scratchpad"`
	Log        LogConfig        `yaml:"log"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type VaultConfig struct {
	ScanDuration time.Duration `yaml:"scan_duration"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	StorageQuota int           `yaml:"storage_quota"`
}

type GateConfig struct {
	ScanDuration time.Duration `yaml:"scan_duration"`
}

type LockdownConfig struct {
	Countdown int `yaml:"countdown"`
}

type ScratchpadConfig struct {
	SelfDestruct int `yaml:"self_destruct"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog.Level, falling
// back to info for unknown names.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaults() Config {
	return Config{
		Store: StoreConfig{
			Path: "data/ghostgate.db",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Vault: VaultConfig{
			ScanDuration: 1800 * time.Millisecond,
			IdleTimeout:  30 * time.Second,
			StorageQuota: 5 * 1024 * 1024,
		},
		Gate: GateConfig{
			ScanDuration: 2200 * time.Millisecond,
		},
		Lockdown: LockdownConfig{
			Countdown: 5,
		},
		Scratchpad: ScratchpadConfig{
			SelfDestruct: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Defaults returns the built-in configuration without reading any file
// or environment variable.
func Defaults() Config {
	return defaults()
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("GHOSTGATE_CONFIG")
	if path == "" {
		path = "config/ghostgate.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GHOSTGATE_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("GHOSTGATE_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("GHOSTGATE_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("GHOSTGATE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("GHOSTGATE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Vault.ScanDuration <= 0 {
		return fmt.Errorf("vault.scan_duration must be positive")
	}
	if c.Vault.IdleTimeout <= 0 {
		return fmt.Errorf("vault.idle_timeout must be positive")
	}
	if c.Vault.StorageQuota <= 0 {
		return fmt.Errorf("vault.storage_quota must be positive")
	}
	if c.Gate.ScanDuration <= 0 {
		return fmt.Errorf("gate.scan_duration must be positive")
	}
	if c.Lockdown.Countdown <= 0 {
		return fmt.Errorf("lockdown.countdown must be positive")
	}
	if c.Scratchpad.SelfDestruct <= 0 {
		return fmt.Errorf("scratchpad.self_destruct must be positive")
	}
	return nil
}
