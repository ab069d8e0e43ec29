package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks required and range-limited settings. It returns nil or *Error.
func (c Config) Validate() error {
	e := &Error{}
	if strings.TrimSpace(c.TelegramToken) == "" {
		e.Missing = append(e.Missing, EnvTelegramToken)
	}
	if strings.TrimSpace(c.DefaultModel) == "" {
		e.Missing = append(e.Missing, EnvDefaultModel)
	}
	if strings.TrimSpace(c.OllamaHost) == "" {
		e.Missing = append(e.Missing, EnvOllamaHost)
	}
	if c.AdminID < 0 {
		e.invalid("%s=%d (must not be negative)", EnvAdminID, c.AdminID)
	}
	if c.ChunkSize <= 0 {
		e.invalid("%s=%d (must be a positive integer)", EnvChunkSize, c.ChunkSize)
	}
	if c.StreamTimeoutSeconds <= 0 {
		e.invalid("%s=%d (must be positive)", EnvStreamTimeout, c.StreamTimeoutSeconds)
	}
	if c.FlushCooldownMS < 0 {
		e.invalid("%s=%d (must not be negative)", EnvFlushCooldown, c.FlushCooldownMS)
	}
	if c.TelegramPollTimeout <= 0 {
		e.invalid("%s=%d (must be positive)", EnvTelegramPollTimeout, c.TelegramPollTimeout)
	}
	if c.TelegramRatePerSecond <= 0 {
		e.invalid("%s=%v (must be positive)", EnvTelegramRate, c.TelegramRatePerSecond)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		e.invalid("%s=%q (use console or json)", EnvLogFormat, c.LogFormat)
	}
	if e.empty() {
		return nil
	}
	return e
}

func (c Config) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

func (c Config) FlushCooldown() time.Duration {
	return time.Duration(c.FlushCooldownMS) * time.Millisecond
}

func (c Config) PollTimeout() time.Duration {
	return time.Duration(c.TelegramPollTimeout) * time.Second
}

// Resolve builds the configuration from defaults, the discovered config file,
// the env file and the environment. It does not validate. Invalid environment
// values come back as *Error alongside a cfg holding every valid value, so
// callers can Combine them with Validate's findings.
func Resolve(configPath, envFile string) (Config, string, error) {
	cfg := Default()
	path, err := FindFile(configPath)
	if err != nil {
		return cfg, "", err
	}
	if path != "" {
		if cfg, err = Load(path); err != nil {
			return cfg, path, err
		}
	}
	if err := LoadDotEnv(envFile); err != nil {
		return cfg, path, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, path, fmt.Errorf("environment: %w", err)
	}
	return cfg, path, nil
}
