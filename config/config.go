package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
)

var (
	cfgFile = "nim/config.json"
)

type InvalidConfig struct {
	err string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("Config error: %s", e.err)
}

// Duration reads "30m"-style strings from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &InvalidConfig{fmt.Sprintf("duration must be a string: %s", b)}
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return &InvalidConfig{err.Error()}
	}
	*d = Duration(v)
	return nil
}

type ServerConfig struct {
	Addr               string   `json:"addr"`
	MaxConcurrentGames int      `json:"max_concurrent_games"`
	SessionTimeout     Duration `json:"session_timeout"`
	CleanupInterval    Duration `json:"cleanup_interval"`
	MonitorInterval    Duration `json:"monitor_interval"`
	AllowedOrigins     []string `json:"allowed_origins"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

type Config struct {
	Server ServerConfig `json:"server"`
	Log    LogConfig    `json:"log"`
}

// InitConfig loads the defaults, overlaid with nim/config.json from the XDG
// config directories when one exists.
func InitConfig() (*Config, error) {
	absPath, err := xdg.SearchConfigFile(cfgFile)
	if err != nil {
		config := defaultCopy()
		return &config, config.Validate()
	}
	return Load(absPath)
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	config := defaultCopy()
	if err := readCfgFile(path, &config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return &InvalidConfig{"server.addr is empty"}
	}
	if c.Server.MaxConcurrentGames <= 0 {
		return &InvalidConfig{"server.max_concurrent_games must be positive"}
	}
	if c.Server.SessionTimeout <= 0 {
		return &InvalidConfig{"server.session_timeout must be positive"}
	}
	if c.Server.CleanupInterval <= 0 {
		return &InvalidConfig{"server.cleanup_interval must be positive"}
	}
	if c.Server.MonitorInterval <= 0 {
		return &InvalidConfig{"server.monitor_interval must be positive"}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return &InvalidConfig{fmt.Sprintf("log.level: %v", err)}
	}
	return nil
}

// LogLevel is the parsed log level; call Validate first.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) Save() error {
	absPath, err := xdg.ConfigFile(cfgFile)
	if err != nil {
		return err
	}
	return saveCfgFile(absPath, c, 0664)
}

func defaultCopy() Config {
	config := DefaultConfig
	config.Server.AllowedOrigins = slices.Clone(DefaultConfig.Server.AllowedOrigins)
	return config
}

func saveCfgFile(filePath string, a any, perm fs.FileMode) error {
	jsonData, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, jsonData, perm)
}

func readCfgFile(filePath string, a any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, a); err != nil {
		var invalid *InvalidConfig
		if errors.As(err, &invalid) {
			return invalid
		}
		return &InvalidConfig{err.Error()}
	}
	return nil
}
