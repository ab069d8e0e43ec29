// Package config resolves the bot's settings: defaults, then an optional config
// file, then .env and the process environment. CLI flags are applied on top by
// the caller before Validate.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"aitelegrambot/internal/common/fsutil"
)

// AppName names the config directory and the config path environment variable.
const AppName = "aitelegrambot"

// Config holds runtime parameters for the bot.
type Config struct {
	TelegramToken         string  `json:"telegram_bot_token" yaml:"telegram_bot_token" toml:"telegram_bot_token"`
	TelegramAPIBase       string  `json:"telegram_api_base" yaml:"telegram_api_base" toml:"telegram_api_base"`
	TelegramPollTimeout   int     `json:"telegram_poll_timeout" yaml:"telegram_poll_timeout" toml:"telegram_poll_timeout"`
	TelegramRatePerSecond float64 `json:"telegram_rate_per_second" yaml:"telegram_rate_per_second" toml:"telegram_rate_per_second"`

	OllamaHost   string `json:"ollama_host" yaml:"ollama_host" toml:"ollama_host"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	AdminID      int64  `json:"admin_id" yaml:"admin_id" toml:"admin_id"`

	Streaming            bool `json:"streaming" yaml:"streaming" toml:"streaming"`
	ChunkSize            int  `json:"message_chunk_size" yaml:"message_chunk_size" toml:"message_chunk_size"`
	StreamTimeoutSeconds int  `json:"stream_timeout_seconds" yaml:"stream_timeout_seconds" toml:"stream_timeout_seconds"`
	FlushCooldownMS      int  `json:"flush_cooldown_ms" yaml:"flush_cooldown_ms" toml:"flush_cooldown_ms"`

	HTTPAddr           string   `json:"http_addr" yaml:"http_addr" toml:"http_addr"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		TelegramAPIBase:       "https://api.telegram.org",
		TelegramPollTimeout:   30,
		TelegramRatePerSecond: 20,
		OllamaHost:            "localhost:11434",
		DefaultModel:          "tusharhero/rationalai",
		ChunkSize:             5,
		StreamTimeoutSeconds:  120,
		FlushCooldownMS:       2000,
		LogLevel:              "info",
		LogFormat:             "console",
	}
}

// Load reads a configuration file based on its extension on top of Default().
// Keys absent from the file keep their defaults.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadInto(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}

// FindFile picks the config file to load: explicit, else $AITELEGRAMBOT_CONFIG,
// else the first config.{yaml,yml,toml,json} under $XDG_CONFIG_HOME/aitelegrambot
// or ~/.config/aitelegrambot. An empty result with nil error means none exists.
// An explicit path that does not exist is an error.
func FindFile(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(strings.ToUpper(AppName) + "_CONFIG")} {
		if p == "" {
			continue
		}
		exp, err := fsutil.ExpandHome(p)
		if err != nil {
			return "", err
		}
		if !fsutil.PathExists(exp) {
			return "", fmt.Errorf("config file not found: %s", p)
		}
		return exp, nil
	}
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, AppName))
	}
	if home, err := fsutil.ExpandHome("~/.config"); err == nil {
		dirs = append(dirs, filepath.Join(home, AppName))
	}
	return fsutil.FirstExisting(fsutil.Candidates(dirs, "config", ".yaml", ".yml", ".toml", ".json")...), nil
}
