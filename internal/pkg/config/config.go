package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DeviceCfg   *DeviceConfig
	MqttCfg     *MqttConfig
	StatePath   string `env:"STATE_DB" envDefault:"ato-dashboard.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:"0.0.0.0:8000"`
	Timezone    string `env:"TZ" envDefault:"Local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	// CleanupSchedule is a cron expression for pruning the archive.
	CleanupSchedule string `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`
}

type DeviceConfig struct {
	Host               string        `env:"ATO_HOST"`
	Secure             bool          `env:"ATO_SECURE"`
	InsecureSkipVerify bool          `env:"ATO_INSECURE_SKIP_VERIFY"`
	ReconnectDelay     time.Duration `env:"ATO_RECONNECT_DELAY" envDefault:"2s"`
	ReconnectAttempts  int           `env:"ATO_RECONNECT_ATTEMPTS" envDefault:"5"`
	WatchInterval      time.Duration `env:"ATO_WATCH_INTERVAL" envDefault:"2s"`
	RequestTimeout     time.Duration `env:"ATO_REQUEST_TIMEOUT" envDefault:"10s"`
}

type MqttConfig struct {
	Host     string `env:"MQTT_HOST"`
	Username string `env:"MQTT_USER"`
	Password string `env:"MQTT_PASS"`
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DeviceCfg: &DeviceConfig{},
		MqttCfg:   &MqttConfig{},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg.DeviceCfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg.MqttCfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DeviceCfg == nil || c.DeviceCfg.Host == "" {
		return fmt.Errorf("device host is required")
	}
	if c.DeviceCfg.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the zone used to print local timestamps.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// CronSpec prefixes schedule with the configured zone so jobs run on
// local time.
func (c *Config) CronSpec(schedule string) string {
	if c.Timezone == "" || c.Timezone == "Local" {
		return schedule
	}
	return "CRON_TZ=" + c.Timezone + " " + schedule
}

// WebsocketURL follows the scheme of the device's own pages: a secure
// device gets wss, anything else ws.
func (d *DeviceConfig) WebsocketURL() string {
	u := url.URL{Scheme: "ws", Host: d.Host, Path: "/ws"}
	if d.Secure {
		u.Scheme = "wss"
	}
	return u.String()
}

func (d *DeviceConfig) BaseURL() string {
	u := url.URL{Scheme: "http", Host: d.Host}
	if d.Secure {
		u.Scheme = "https"
	}
	return u.String()
}

func (m *MqttConfig) Enabled() bool {
	return m != nil && m.Host != ""
}
