package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir returns the carremote configuration directory.
// Respects XDG_CONFIG_HOME on Unix, APPDATA on Windows.
func Dir() string {
	var base string

	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	} else {
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(base, "carremote")
}

// File returns the path to config.yaml.
func File() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Config is the application configuration.
type Config struct {
	Transport string `yaml:"transport"` // rfcomm, tcp, serial or sim
	Peer      string `yaml:"peer"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`

	BatteryPoll    time.Duration `yaml:"battery_poll"`
	StarterSeconds int           `yaml:"starter_seconds"`
	AutoConnect    bool          `yaml:"auto_connect"`
	HistorySize    int           `yaml:"history_size"`

	Serial SerialConfig `yaml:"serial"`
	Redis  RedisConfig  `yaml:"redis"`

	HTTPAddr string `yaml:"http_addr"`
	Script   string `yaml:"script"`
	LogLevel string `yaml:"log_level"`
}

type SerialConfig struct {
	Baud int `yaml:"baud"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport:      "rfcomm",
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		BatteryPoll:    2 * time.Second,
		StarterSeconds: 3,
		AutoConnect:    true,
		HistorySize:    8,
		Serial:         SerialConfig{Baud: 9600},
		Redis:          RedisConfig{Prefix: "carremote"},
		LogLevel:       "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// an empty path means File().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = File()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch strings.ToLower(c.Transport) {
	case "rfcomm", "bluetooth", "tcp", "serial", "sim", "":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.BatteryPoll < 0 {
		return errors.New("battery_poll must not be negative")
	}
	if c.StarterSeconds < 1 || c.StarterSeconds > 10 {
		return fmt.Errorf("starter_seconds %d out of range 1-10", c.StarterSeconds)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history_size %d must be positive", c.HistorySize)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud %d must be positive", c.Serial.Baud)
	}
	return nil
}

// PeersFile returns the peer history path.
func PeersFile() string {
	return filepath.Join(Dir(), "peers.yaml")
}

// ScriptPath resolves the startup script: the configured path, or init.lua
// in the config directory when it exists.
func (c Config) ScriptPath() string {
	if c.Script != "" {
		return c.Script
	}
	p := filepath.Join(Dir(), "init.lua")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
