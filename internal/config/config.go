package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

const envPrefix = "CONFCLIENT"

type Config struct {
	Mode     string `mapstructure:"mode" validate:"oneof=release debug"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	ServerURL string `mapstructure:"server_url" validate:"required,url"`
	StatsURL  string `mapstructure:"stats_url" validate:"omitempty,url"`
	RoomID    string `mapstructure:"room_id"`
	StreamID  string `mapstructure:"stream_id"`
	Role      string `mapstructure:"role" validate:"oneof=presenter viewer"`

	RoomPollInterval  time.Duration `mapstructure:"room_poll_interval" validate:"gt=0"`
	StatsPollInterval time.Duration `mapstructure:"stats_poll_interval" validate:"gt=0"`
	StatsTimeout      time.Duration `mapstructure:"stats_timeout" validate:"gt=0"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ReadLimit         int64         `mapstructure:"read_limit" validate:"gt=0"`
	SendBuffer        int           `mapstructure:"send_buffer" validate:"gt=0"`

	ControlAddr string `mapstructure:"control_addr" validate:"omitempty,hostname_port"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"server":        "server_url",
	"stats-url":     "stats_url",
	"room":          "room_id",
	"stream":        "stream_id",
	"role":          "role",
	"control":       "control_addr",
	"log-level":     "log_level",
	"mode":          "mode",
	"room-poll":     "room_poll_interval",
	"stats-poll":    "stats_poll_interval",
	"dial-timeout":  "dial_timeout",
	"write-timeout": "write_timeout",
}

// Load resolves configuration from defaults, an optional YAML file
// (--config flag or CONFIG_FILE), CONFCLIENT_* environment variables and
// flags, in increasing priority.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("server_url", "")
	v.SetDefault("stats_url", "")
	v.SetDefault("room_id", "")
	v.SetDefault("stream_id", "")
	v.SetDefault("role", "viewer")
	v.SetDefault("room_poll_interval", "5s")
	v.SetDefault("stats_poll_interval", "10s")
	v.SetDefault("stats_timeout", "5s")
	v.SetDefault("dial_timeout", "5s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("control_addr", "")

	v.SetEnvPrefix(envPrefix)
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
	}

	fileName := os.Getenv("CONFIG_FILE")
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			fileName = f.Value.String()
		}
	}
	if fileName != "" {
		v.SetConfigFile(fileName)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("module", "config").
		Str("server", cfg.ServerURL).
		Str("role", cfg.Role).
		Str("mode", cfg.Mode).
		Msg("config resolved")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
