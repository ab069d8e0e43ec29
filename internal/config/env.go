package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvTelegramToken       = "TELEGRAM_BOT_TOKEN"
	EnvTelegramAPIBase     = "TELEGRAM_API_BASE"
	EnvTelegramPollTimeout = "TELEGRAM_POLL_TIMEOUT"
	EnvTelegramRate        = "TELEGRAM_RATE_PER_SECOND"
	EnvOllamaHost          = "OLLAMA_HOST"
	EnvDefaultModel        = "DEFAULT_MODEL"
	EnvAdminID             = "ADMIN_ID"
	EnvStreaming           = "ENABLE_STREAMING_RESPONSE"
	EnvChunkSize           = "MESSAGE_CHUNK_SIZE"
	EnvStreamTimeout       = "STREAM_TIMEOUT_SECONDS"
	EnvFlushCooldown       = "FLUSH_COOLDOWN_MS"
	EnvHTTPAddr            = "HTTP_ADDR"
	EnvCORSOrigins         = "CORS_ALLOWED_ORIGINS"
	EnvLogLevel            = "LOG_LEVEL"
	EnvLogFormat           = "LOG_FORMAT"
)

// DefaultEnvFile is loaded when no env file is named; its absence is not an error.
const DefaultEnvFile = ".env"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. An empty path means
// DefaultEnvFile, which may be absent.
func LoadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays set environment variables onto cfg. Every unparsable value
// is reported in one *Error.
func ApplyEnv(cfg *Config) error {
	e := &Error{}

	str(EnvTelegramToken, &cfg.TelegramToken)
	str(EnvTelegramAPIBase, &cfg.TelegramAPIBase)
	integer(e, EnvTelegramPollTimeout, &cfg.TelegramPollTimeout)
	if v, ok := lookup(EnvTelegramRate); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.invalid("%s=%q (must be a number)", EnvTelegramRate, v)
		} else {
			cfg.TelegramRatePerSecond = f
		}
	}
	str(EnvOllamaHost, &cfg.OllamaHost)
	str(EnvDefaultModel, &cfg.DefaultModel)
	if v, ok := lookup(EnvAdminID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.invalid("%s=%q (must be a Telegram user id)", EnvAdminID, v)
		} else {
			cfg.AdminID = id
		}
	}
	if v, ok := lookup(EnvStreaming); ok {
		on, err := ParseSwitch(v)
		if err != nil {
			e.invalid("%s=%q (use enable or disable)", EnvStreaming, v)
		} else {
			cfg.Streaming = on
		}
	}
	integer(e, EnvChunkSize, &cfg.ChunkSize)
	integer(e, EnvStreamTimeout, &cfg.StreamTimeoutSeconds)
	integer(e, EnvFlushCooldown, &cfg.FlushCooldownMS)
	str(EnvHTTPAddr, &cfg.HTTPAddr)
	if v, ok := lookup(EnvCORSOrigins); ok {
		cfg.CORSAllowedOrigins = SplitCSV(v)
	}
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvLogFormat, &cfg.LogFormat)

	if e.empty() {
		return nil
	}
	return e
}

// ParseSwitch accepts enable/disable plus the usual boolean spellings.
func ParseSwitch(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "enable", "enabled", "true", "1", "yes", "on":
		return true, nil
	case "disable", "disabled", "false", "0", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("not a switch value: %q", v)
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lookup returns a set, non-blank variable.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func str(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func integer(e *Error, key string, dst *int) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid("%s=%q (must be an integer)", key, v)
		return
	}
	*dst = n
}
