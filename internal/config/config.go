// Package config loads the configuration of structurewatch.
//
// Values are taken from defaults, then from an optional YAML file
// and finally from environment variables prefixed with STRUCTUREWATCH_.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chasinglogic/appdirs"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	AppName     = "structurewatch"
	dbFileName  = "structurewatch.sqlite"
	logFileName = "structurewatch.log"
	envPrefix   = "STRUCTUREWATCH_"
)

// Config is the configuration of the app.
type Config struct {
	ConcurrencyLimit int
	DataDir          string
	Discord          Discord
	ESI              ESI
	LogDir           string
	MetricsAddress   string
	PingRetention    time.Duration
	Schedules        Schedules
}

// Discord configures where alerts are posted to.
// Either a bot token with a channel or a webhook URL must be set.
type Discord struct {
	BotToken   string
	ChannelID  string
	WebhookURL string
}

// UsesWebhook reports whether alerts are sent through a webhook.
func (d Discord) UsesWebhook() bool {
	return d.BotToken == "" && d.WebhookURL != ""
}

type ESI struct {
	MinErrorsRemain int
	Timeout         time.Duration
	// UserAgent identifies the operator to CCP and should contain a contact, e.g. an email address.
	UserAgent       string
}

// Schedules are cron specs for the background tasks. An empty spec disables a task.
type Schedules struct {
	Cleanup       string
	LowFuel       string
	Notifications string
	Structures    string
}

// Default returns a configuration with default values.
func Default() Config {
	ad := appdirs.New(AppName)
	return Config{
		ConcurrencyLimit: 5,
		DataDir:          ad.UserData(),
		ESI: ESI{
			MinErrorsRemain: 5,
			Timeout:         30 * time.Second,
		},
		LogDir:         ad.UserLog(),
		MetricsAddress: ":9090",
		PingRetention:  90 * 24 * time.Hour,
		Schedules: Schedules{
			Cleanup:       "30 3 * * *",
			LowFuel:       "0 18 * * *",
			Notifications: "* * * * *",
			Structures:    "15 * * * *",
		},
	}
}

// DSN returns the data source name of the database.
func (c Config) DSN() string {
	return "file:" + filepath.Join(c.DataDir, dbFileName)
}

// LogFile returns the path of the log file.
func (c Config) LogFile() string {
	return filepath.Join(c.LogDir, logFileName)
}

// Validate reports an error when the configuration can not be used.
func (c Config) Validate() error {
	var errs []error
	if c.ConcurrencyLimit < 1 {
		errs = append(errs, fmt.Errorf("concurrency limit must be at least 1: %d", c.ConcurrencyLimit))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data dir not set"))
	}
	if c.PingRetention <= 0 {
		errs = append(errs, fmt.Errorf("ping retention must be positive: %s", c.PingRetention))
	}
	if c.ESI.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ESI timeout must be positive: %s", c.ESI.Timeout))
	}
	if c.ESI.UserAgent == "" {
		errs = append(errs, fmt.Errorf("ESI user agent not set, e.g. \"structurewatch you@example.com\""))
	}
	switch {
	case c.Discord.BotToken != "" && c.Discord.ChannelID == "":
		errs = append(errs, fmt.Errorf("discord channel ID required when using a bot token"))
	case c.Discord.BotToken == "" && c.Discord.WebhookURL == "":
		errs = append(errs, fmt.Errorf("discord bot token or webhook URL required"))
	}
	return errors.Join(errs...)
}

// fileConfig is the layout of the YAML config file.
// Pointers distinguish missing keys from empty values.
type fileConfig struct {
	ConcurrencyLimit *int    `yaml:"concurrency_limit"`
	DataDir          *string `yaml:"data_dir"`
	Discord          struct {
		BotToken   *string `yaml:"bot_token"`
		ChannelID  *string `yaml:"channel_id"`
		WebhookURL *string `yaml:"webhook_url"`
	} `yaml:"discord"`
	ESI struct {
		MinErrorsRemain *int    `yaml:"min_errors_remain"`
		Timeout         *string `yaml:"timeout"`
		UserAgent       *string `yaml:"user_agent"`
	} `yaml:"esi"`
	LogDir         *string `yaml:"log_dir"`
	MetricsAddress *string `yaml:"metrics_address"`
	PingRetention  *string `yaml:"ping_retention"`
	Schedules      struct {
		Cleanup       *string `yaml:"cleanup"`
		LowFuel       *string `yaml:"low_fuel"`
		Notifications *string `yaml:"notifications"`
		Structures    *string `yaml:"structures"`
	} `yaml:"schedules"`
}

// Load returns the configuration. It is not validated.
// An empty path skips the config file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := c.applyYAML(data); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("config environment: %w", err)
	}
	return c, nil
}

// LoadEnvFile loads environment variables from a .env file.
// A missing file is not an error.
func LoadEnvFile(path string) (bool, error) {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Config) applyYAML(data []byte) error {
	var f fileConfig
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return err
	}
	setIfPresent(&c.ConcurrencyLimit, f.ConcurrencyLimit)
	setIfPresent(&c.DataDir, f.DataDir)
	setIfPresent(&c.Discord.BotToken, f.Discord.BotToken)
	setIfPresent(&c.Discord.ChannelID, f.Discord.ChannelID)
	setIfPresent(&c.Discord.WebhookURL, f.Discord.WebhookURL)
	setIfPresent(&c.ESI.MinErrorsRemain, f.ESI.MinErrorsRemain)
	setIfPresent(&c.ESI.UserAgent, f.ESI.UserAgent)
	setIfPresent(&c.LogDir, f.LogDir)
	setIfPresent(&c.MetricsAddress, f.MetricsAddress)
	setIfPresent(&c.Schedules.Cleanup, f.Schedules.Cleanup)
	setIfPresent(&c.Schedules.LowFuel, f.Schedules.LowFuel)
	setIfPresent(&c.Schedules.Notifications, f.Schedules.Notifications)
	setIfPresent(&c.Schedules.Structures, f.Schedules.Structures)
	var errs []error
	for _, x := range []struct {
		dst *time.Duration
		v   *string
		key string
	}{
		{&c.ESI.Timeout, f.ESI.Timeout, "esi.timeout"},
		{&c.PingRetention, f.PingRetention, "ping_retention"},
	} {
		if x.v == nil {
			continue
		}
		d, err := parseDuration(*x.v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", x.key, err))
			continue
		}
		*x.dst = d
	}
	return errors.Join(errs...)
}

func setIfPresent[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}
	c.ConcurrencyLimit = e.getInt("CONCURRENCY_LIMIT", c.ConcurrencyLimit)
	c.DataDir = e.get("DATA_DIR", c.DataDir)
	c.Discord.BotToken = e.get("DISCORD_BOT_TOKEN", c.Discord.BotToken)
	c.Discord.ChannelID = e.get("DISCORD_CHANNEL_ID", c.Discord.ChannelID)
	c.Discord.WebhookURL = e.get("DISCORD_WEBHOOK_URL", c.Discord.WebhookURL)
	c.ESI.MinErrorsRemain = e.getInt("ESI_MIN_ERRORS_REMAIN", c.ESI.MinErrorsRemain)
	c.ESI.Timeout = e.getDuration("ESI_TIMEOUT", c.ESI.Timeout)
	c.ESI.UserAgent = e.get("ESI_USER_AGENT", c.ESI.UserAgent)
	c.LogDir = e.get("LOG_DIR", c.LogDir)
	c.MetricsAddress = e.get("METRICS_ADDRESS", c.MetricsAddress)
	c.PingRetention = e.getDuration("PING_RETENTION", c.PingRetention)
	c.Schedules.Cleanup = e.get("SCHEDULE_CLEANUP", c.Schedules.Cleanup)
	c.Schedules.LowFuel = e.get("SCHEDULE_LOW_FUEL", c.Schedules.LowFuel)
	c.Schedules.Notifications = e.get("SCHEDULE_NOTIFICATIONS", c.Schedules.Notifications)
	c.Schedules.Structures = e.get("SCHEDULE_STRUCTURES", c.Schedules.Structures)
	return errors.Join(e.errs...)
}

// envReader reads prefixed environment variables and collects parse errors.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key, defaultValue string) string {
	if v, ok := e.lookup(envPrefix + key); ok {
		return v
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {
	v, ok := e.lookup(envPrefix + key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return i
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := e.lookup(envPrefix + key)
	if !ok {
		return defaultValue
	}
	d, err := parseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return d
}

// parseDuration parses a duration like time.ParseDuration,
// but also accepts days, e.g. "90d".
func parseDuration(s string) (time.Duration, error) {
	if n := len(s); n > 1 && s[n-1] == 'd' {
		days, err := strconv.Atoi(s[:n-1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
