package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"slotwatch/internal/batch"
	"slotwatch/internal/pipeline"
	"slotwatch/internal/storage"
)

const (
	DefaultTransport = "line"
	DefaultSchedule  = "@every 10m"
)

// Environment variables read by ApplyEnv.
const (
	EnvURL           = "SLOTWATCH_URL"
	EnvTransport     = "SLOTWATCH_TRANSPORT"
	EnvLogLevel      = "SLOTWATCH_LOG_LEVEL"
	EnvLineToken     = "LINE_TOKEN"
	EnvSnapshotPath  = "SNAPSHOT_HTML"
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHAT_ID"
	EnvNATSURL       = "NATS_URL"
)

// Decode strictly decodes a JSON or YAML document. path is only used to pick
// the format by extension.
func Decode(path string, data []byte) (*Config, error) {
	jb := data
	if isYAML(path, data) {
		var err error
		if jb, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// ReadFile decodes the file at path. An empty path yields an empty config.
func ReadFile(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return &Config{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment values onto cfg. A set variable wins over
// the file. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if cfg == nil || getenv == nil {
		return nil
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Source.URL, EnvURL)
	set(&cfg.Notify.Transport, EnvTransport)
	set(&cfg.Logging.Level, EnvLogLevel)
	set(&cfg.Notify.Line.Token, EnvLineToken)
	set(&cfg.Snapshot.Path, EnvSnapshotPath)
	set(&cfg.Notify.Telegram.Token, EnvTelegramToken)
	set(&cfg.Notify.NATS.URL, EnvNATSURL)
	if v := strings.TrimSpace(getenv(EnvTelegramChat)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", EnvTelegramChat, v)
		}
		cfg.Notify.Telegram.ChatID = id
	}
	return nil
}

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	c.Source.URL = strings.TrimSpace(c.Source.URL)
	c.Snapshot.Driver = strings.ToLower(strings.TrimSpace(c.Snapshot.Driver))
	if c.Snapshot.Driver == "" {
		c.Snapshot.Driver = "file"
	}
	if strings.TrimSpace(c.Snapshot.Path) == "" {
		c.Snapshot.Path = storage.DefaultPath
	}
	c.Notify.Transport = strings.ToLower(strings.TrimSpace(c.Notify.Transport))
	if c.Notify.Transport == "" {
		c.Notify.Transport = DefaultTransport
	}
	if strings.TrimSpace(c.Notify.Header) == "" {
		c.Notify.Header = pipeline.DefaultHeader
	}
	if c.Notify.MaxChars <= 0 {
		c.Notify.MaxChars = batch.DefaultLimit
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Schedule.Spec) == "" {
		c.Schedule.Spec = DefaultSchedule
	}
}

// Load reads path (optional), overlays the environment, fills defaults and
// validates.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
