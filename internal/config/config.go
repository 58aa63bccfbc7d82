// Package config resolves settings from defaults, an optional yaml file,
// NOISECHAT_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "NOISECHAT"

type Poll struct {
	Status      time.Duration `mapstructure:"status"`
	Messages    time.Duration `mapstructure:"messages"`
	Members     time.Duration `mapstructure:"members"`
	Diagnostics time.Duration `mapstructure:"diagnostics"`
}

type Config struct {
	BaseURL                string        `mapstructure:"base_url"`
	Username               string        `mapstructure:"username"`
	Server                 string        `mapstructure:"server"`
	Port                   int           `mapstructure:"port"`
	AutoConnect            bool          `mapstructure:"auto_connect"`
	Room                   string        `mapstructure:"room"`
	Poll                   Poll          `mapstructure:"poll"`
	NoticeTTL              time.Duration `mapstructure:"notice_ttl"`
	RejoinDelay            time.Duration `mapstructure:"rejoin_delay"`
	StatusFailureThreshold int           `mapstructure:"status_failure_threshold"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	StateDir               string        `mapstructure:"state_dir"`
	LogFile                string        `mapstructure:"log_file"`
	LogLevel               string        `mapstructure:"log_level"`
	AltScreen              bool          `mapstructure:"alt_screen"`
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"base-url":                 "base_url",
	"username":                 "username",
	"server":                   "server",
	"port":                     "port",
	"auto-connect":             "auto_connect",
	"room":                     "room",
	"poll-status":              "poll.status",
	"poll-messages":            "poll.messages",
	"poll-members":             "poll.members",
	"poll-diagnostics":         "poll.diagnostics",
	"notice-ttl":               "notice_ttl",
	"rejoin-delay":             "rejoin_delay",
	"status-failure-threshold": "status_failure_threshold",
	"request-timeout":          "request_timeout",
	"state-dir":                "state_dir",
	"log-file":                 "log_file",
	"log-level":                "log_level",
	"alt-screen":               "alt_screen",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://127.0.0.1:5000")
	v.SetDefault("username", "")
	v.SetDefault("server", "127.0.0.1")
	v.SetDefault("port", 8000)
	v.SetDefault("auto_connect", false)
	v.SetDefault("room", "")
	v.SetDefault("poll.status", "1s")
	v.SetDefault("poll.messages", "1s")
	v.SetDefault("poll.members", "5s")
	v.SetDefault("poll.diagnostics", "500ms")
	v.SetDefault("notice_ttl", "5s")
	v.SetDefault("rejoin_delay", "500ms")
	v.SetDefault("status_failure_threshold", 1)
	v.SetDefault("request_timeout", "0s")
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("log_file", filepath.Join(os.TempDir(), "noisechat-tui.log"))
	v.SetDefault("log_level", "info")
	v.SetDefault("alt_screen", true)
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "noisechat")
	}
	return filepath.Join(os.TempDir(), "noisechat")
}

// RegisterFlags declares every flag Load understands. Defaults live in
// viper, so flag defaults here are only for --help.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a yaml config file")
	flags.String("base-url", "http://127.0.0.1:5000", "Chat backend base URL")
	flags.String("username", "", "Username for /connect")
	flags.String("server", "127.0.0.1", "Secure chat server host for /connect")
	flags.Int("port", 8000, "Secure chat server port for /connect")
	flags.Bool("auto-connect", false, "Connect on startup when a username is set")
	flags.String("room", "", "Room to open after connecting (like ?room=)")
	flags.Duration("poll-status", time.Second, "Status poll interval")
	flags.Duration("poll-messages", time.Second, "Message poll interval")
	flags.Duration("poll-members", 5*time.Second, "Member list poll interval")
	flags.Duration("poll-diagnostics", 500*time.Millisecond, "Diagnostics run status poll interval")
	flags.Duration("notice-ttl", 5*time.Second, "How long notifications stay visible")
	flags.Duration("rejoin-delay", 500*time.Millisecond, "Delay before rejoining after leaving a room")
	flags.Int("status-failure-threshold", 1, "Consecutive failed status polls treated as a disconnect")
	flags.Duration("request-timeout", 0, "Per-request timeout (0 = transport default)")
	flags.String("state-dir", defaultStateDir(), "Directory for persisted client state")
	flags.String("log-file", filepath.Join(os.TempDir(), "noisechat-tui.log"), "Log file path")
	flags.String("log-level", "info", "Log level (debug|info|warn|error)")
	flags.Bool("alt-screen", true, "Use alternate screen buffer")
}

// Load resolves the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && strings.TrimSpace(f.Value.String()) != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", f.Value.String(), err)
			}
		}
	}
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("noisechat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Username = strings.TrimSpace(c.Username)
	c.Server = strings.TrimSpace(c.Server)
	c.Room = strings.TrimSpace(c.Room)
	c.Poll.Status = clampDuration(c.Poll.Status, 250*time.Millisecond, time.Minute)
	c.Poll.Messages = clampDuration(c.Poll.Messages, 250*time.Millisecond, time.Minute)
	c.Poll.Members = clampDuration(c.Poll.Members, time.Second, 5*time.Minute)
	// Membership changes less often than history; never poll it faster.
	if c.Poll.Members < c.Poll.Messages {
		c.Poll.Members = c.Poll.Messages
	}
	c.Poll.Diagnostics = clampDuration(c.Poll.Diagnostics, 100*time.Millisecond, 30*time.Second)
	c.NoticeTTL = clampDuration(c.NoticeTTL, time.Second, time.Minute)
	c.RejoinDelay = clampDuration(c.RejoinDelay, 0, 10*time.Second)
	c.RequestTimeout = clampDuration(c.RequestTimeout, 0, 5*time.Minute)
	c.StatusFailureThreshold = clampInt(c.StatusFailureThreshold, 1, 10)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

func clampDuration(value, min, max time.Duration) time.Duration {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
