package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the optional config file read before the environment.
// Files ending in .yaml or .yml are YAML; anything else is TOML.
const EnvConfigFile = "TASKBOARD_CONFIG"

// Config holds all client configuration. Values come from defaults, then
// the file named by TASKBOARD_CONFIG, then TASKBOARD_* variables.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Session SessionConfig `toml:"session" yaml:"session"`
	Alerts  AlertConfig   `toml:"alerts" yaml:"alerts"`
	Slack   SlackConfig   `toml:"slack" yaml:"slack"`
	Redis   RedisConfig   `toml:"redis" yaml:"redis"`
}

// ServerConfig locates the board server.
type ServerConfig struct {
	WSURL       string        `toml:"ws_url" yaml:"ws_url"`
	APIURL      string        `toml:"api_url" yaml:"api_url"`
	HTTPTimeout time.Duration `toml:"http_timeout" yaml:"http_timeout"`
}

// SessionConfig holds realtime session settings.
type SessionConfig struct {
	Username      string        `toml:"username" yaml:"username"`
	HeartBeat     string        `toml:"heart_beat" yaml:"heart_beat"`
	AcceptVersion string        `toml:"accept_version" yaml:"accept_version"`
	CloseGrace    time.Duration `toml:"close_grace" yaml:"close_grace"`
	OutboundQueue int           `toml:"outbound_queue" yaml:"outbound_queue"`
}

// AlertConfig holds notification pipeline settings.
type AlertConfig struct {
	TTL             time.Duration `toml:"ttl" yaml:"ttl"`
	DueScanInterval time.Duration `toml:"due_scan_interval" yaml:"due_scan_interval"`
	DueSoonWindow   time.Duration `toml:"due_soon_window" yaml:"due_soon_window"`
	DueDedupe       bool          `toml:"due_dedupe" yaml:"due_dedupe"`
}

// SlackConfig holds the optional Slack alert mirror.
type SlackConfig struct {
	BotToken string  `toml:"bot_token" yaml:"bot_token"` //nolint:gosec // G117: Slack bot token config
	Channel  string  `toml:"channel" yaml:"channel"`
	Rate     float64 `toml:"rate" yaml:"rate"`
	Burst    int     `toml:"burst" yaml:"burst"`
}

// Enabled reports whether alerts should be mirrored to Slack.
func (c SlackConfig) Enabled() bool { return c.BotToken != "" }

// RedisConfig holds the optional Redis event tap.
type RedisConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Password string `toml:"password" yaml:"password"` //nolint:gosec // G117: Redis connection config
	DB       int    `toml:"db" yaml:"db"`
}

// Enabled reports whether applied events should be published to Redis.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			WSURL:       "ws://localhost:8080/ws/websocket",
			APIURL:      "http://localhost:8080",
			HTTPTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			HeartBeat:     "10000,10000",
			AcceptVersion: "1.1,1.0",
			CloseGrace:    100 * time.Millisecond,
			OutboundQueue: 64,
		},
		Alerts: AlertConfig{
			TTL:             6 * time.Second,
			DueScanInterval: 60 * time.Second,
			DueSoonWindow:   24 * time.Hour,
		},
		Slack: SlackConfig{
			Rate:  1,
			Burst: 3,
		},
	}
}

// Load reads configuration from the optional config file and the environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("loaded config file")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

func (c *Config) applyEnv() error {
	var err error

	c.Server.WSURL = getEnv("TASKBOARD_WS_URL", c.Server.WSURL)
	c.Server.APIURL = getEnv("TASKBOARD_API_URL", c.Server.APIURL)
	if c.Server.HTTPTimeout, err = getEnvDuration("TASKBOARD_HTTP_TIMEOUT", c.Server.HTTPTimeout); err != nil {
		return err
	}

	c.Session.Username = getEnv("TASKBOARD_USERNAME", c.Session.Username)
	c.Session.HeartBeat = getEnv("TASKBOARD_HEARTBEAT", c.Session.HeartBeat)
	c.Session.AcceptVersion = getEnv("TASKBOARD_ACCEPT_VERSION", c.Session.AcceptVersion)
	if c.Session.CloseGrace, err = getEnvDuration("TASKBOARD_CLOSE_GRACE", c.Session.CloseGrace); err != nil {
		return err
	}
	if c.Session.OutboundQueue, err = getEnvInt("TASKBOARD_OUTBOUND_QUEUE", c.Session.OutboundQueue); err != nil {
		return err
	}

	if c.Alerts.TTL, err = getEnvDuration("TASKBOARD_ALERT_TTL", c.Alerts.TTL); err != nil {
		return err
	}
	if c.Alerts.DueScanInterval, err = getEnvDuration("TASKBOARD_DUE_SCAN_INTERVAL", c.Alerts.DueScanInterval); err != nil {
		return err
	}
	if c.Alerts.DueSoonWindow, err = getEnvDuration("TASKBOARD_DUE_SOON_WINDOW", c.Alerts.DueSoonWindow); err != nil {
		return err
	}
	if c.Alerts.DueDedupe, err = getEnvBool("TASKBOARD_DUE_DEDUPE", c.Alerts.DueDedupe); err != nil {
		return err
	}

	c.Slack.BotToken = getEnv("TASKBOARD_SLACK_BOT_TOKEN", c.Slack.BotToken)
	c.Slack.Channel = getEnv("TASKBOARD_SLACK_CHANNEL", c.Slack.Channel)
	if c.Slack.Rate, err = getEnvFloat("TASKBOARD_SLACK_RATE", c.Slack.Rate); err != nil {
		return err
	}
	if c.Slack.Burst, err = getEnvInt("TASKBOARD_SLACK_BURST", c.Slack.Burst); err != nil {
		return err
	}

	c.Redis.Addr = getEnv("TASKBOARD_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("TASKBOARD_REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvInt("TASKBOARD_REDIS_DB", c.Redis.DB); err != nil {
		return err
	}

	return nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if err := checkURL("TASKBOARD_WS_URL", c.Server.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL("TASKBOARD_API_URL", c.Server.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkHeartBeat(c.Session.HeartBeat); err != nil {
		return err
	}
	if strings.TrimSpace(c.Session.AcceptVersion) == "" {
		return errors.New("TASKBOARD_ACCEPT_VERSION must not be empty")
	}

	if c.Server.HTTPTimeout <= 0 {
		return fmt.Errorf("TASKBOARD_HTTP_TIMEOUT must be positive, got %s", c.Server.HTTPTimeout)
	}
	if c.Session.CloseGrace < 0 {
		return fmt.Errorf("TASKBOARD_CLOSE_GRACE must not be negative, got %s", c.Session.CloseGrace)
	}
	if c.Session.OutboundQueue < 1 {
		return fmt.Errorf("TASKBOARD_OUTBOUND_QUEUE must be >= 1, got %d", c.Session.OutboundQueue)
	}
	if c.Alerts.TTL <= 0 {
		return fmt.Errorf("TASKBOARD_ALERT_TTL must be positive, got %s", c.Alerts.TTL)
	}
	if c.Alerts.DueScanInterval <= 0 {
		return fmt.Errorf("TASKBOARD_DUE_SCAN_INTERVAL must be positive, got %s", c.Alerts.DueScanInterval)
	}
	if c.Alerts.DueSoonWindow <= 0 {
		return fmt.Errorf("TASKBOARD_DUE_SOON_WINDOW must be positive, got %s", c.Alerts.DueSoonWindow)
	}

	if c.Slack.Enabled() {
		if c.Slack.Channel == "" {
			return errors.New("TASKBOARD_SLACK_CHANNEL is required when TASKBOARD_SLACK_BOT_TOKEN is set")
		}
		if c.Slack.Rate <= 0 {
			return fmt.Errorf("TASKBOARD_SLACK_RATE must be positive, got %g", c.Slack.Rate)
		}
		if c.Slack.Burst < 1 {
			return fmt.Errorf("TASKBOARD_SLACK_BURST must be >= 1, got %d", c.Slack.Burst)
		}
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("TASKBOARD_REDIS_DB must be >= 0, got %d", c.Redis.DB)
	}

	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing %s=%q: %w", key, raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", key, strings.Join(schemes, "/"), raw)
}

func checkHeartBeat(v string) error {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return fmt.Errorf("TASKBOARD_HEARTBEAT must be \"<send>,<receive>\" in ms, got %q", v)
	}
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return fmt.Errorf("TASKBOARD_HEARTBEAT must be \"<send>,<receive>\" in ms, got %q", v)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}
