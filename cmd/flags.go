package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/anicoll/ato-dashboard/internal/pkg/config"
)

// Flags are the global flags. Each mirrors an environment variable and
// only overrides it when given.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ato-host",
			Usage:   "controller host, optionally with port",
			EnvVars: []string{"ATO_HOST"},
		},
		&cli.BoolFlag{
			Name:    "ato-secure",
			Usage:   "talk to the controller over https and wss",
			EnvVars: []string{"ATO_SECURE"},
		},
		&cli.BoolFlag{
			Name:    "insecure-skip-verify",
			Usage:   "accept the controller's self-signed certificate",
			EnvVars: []string{"ATO_INSECURE_SKIP_VERIFY"},
		},
		&cli.DurationFlag{
			Name:    "reconnect-delay",
			EnvVars: []string{"ATO_RECONNECT_DELAY"},
		},
		&cli.IntFlag{
			Name:    "reconnect-attempts",
			EnvVars: []string{"ATO_RECONNECT_ATTEMPTS"},
		},
		&cli.StringFlag{
			Name:    "state-db",
			Usage:   "sqlite file holding local settings",
			EnvVars: []string{"STATE_DB"},
		},
		&cli.StringFlag{
			Name:    "listen-addr",
			EnvVars: []string{"LISTEN_ADDR"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "postgres archive, disabled when empty",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "mqtt-host",
			Usage:   "mqtt broker, disabled when empty",
			EnvVars: []string{"MQTT_HOST"},
		},
		&cli.StringFlag{
			Name:    "mqtt-user",
			EnvVars: []string{"MQTT_USER"},
		},
		&cli.StringFlag{
			Name:    "mqtt-pass",
			EnvVars: []string{"MQTT_PASS"},
		},
		&cli.StringFlag{
			Name:    "tz",
			Usage:   "zone used for timestamps and the cleanup schedule",
			EnvVars: []string{"TZ"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "answer yes to every confirmation",
		},
	}
}

// configFromCLI loads the environment and applies any flag set on top.
func configFromCLI(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	strs := map[string]*string{
		"ato-host":     &cfg.DeviceCfg.Host,
		"state-db":     &cfg.StatePath,
		"listen-addr":  &cfg.ListenAddr,
		"database-url": &cfg.DatabaseURL,
		"mqtt-host":    &cfg.MqttCfg.Host,
		"mqtt-user":    &cfg.MqttCfg.Username,
		"mqtt-pass":    &cfg.MqttCfg.Password,
		"tz":           &cfg.Timezone,
		"log-level":    &cfg.LogLevel,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("ato-secure") {
		cfg.DeviceCfg.Secure = c.Bool("ato-secure")
	}
	if c.IsSet("insecure-skip-verify") {
		cfg.DeviceCfg.InsecureSkipVerify = c.Bool("insecure-skip-verify")
	}
	if c.IsSet("reconnect-delay") {
		cfg.DeviceCfg.ReconnectDelay = c.Duration("reconnect-delay")
	}
	if c.IsSet("reconnect-attempts") {
		cfg.DeviceCfg.ReconnectAttempts = c.Int("reconnect-attempts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
