package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

const (
	ProvisionerStatic = "static"
	ProvisionerDaily  = "daily"

	CallClientAgent  = "agent"
	CallClientMemory = "memory"
)

type Config struct {
	Addr      string `env:"CALLCTL_ADDR" envDefault:":8080"`
	LogLevel  string `env:"CALLCTL_LOG_LEVEL" envDefault:"info"`
	Dev       bool   `env:"CALLCTL_DEV" envDefault:"false"`
	StaticDir string `env:"CALLCTL_STATIC_DIR" envDefault:"./static"`

	Provisioner      string        `env:"CALLCTL_PROVISIONER" envDefault:"static"`
	StaticRoomURL    string        `env:"CALLCTL_STATIC_ROOM_URL" envDefault:"https://example.daily.co/hello"`
	DailyAPIKey      string        `env:"CALLCTL_DAILY_API_KEY"`
	DailyAPIBase     string        `env:"CALLCTL_DAILY_API_BASE" envDefault:"https://api.daily.co/v1"`
	RoomTTL          time.Duration `env:"CALLCTL_ROOM_TTL" envDefault:"1h"`
	ProvisionRetries uint64        `env:"CALLCTL_PROVISION_RETRIES" envDefault:"3"`

	CallClient     string        `env:"CALLCTL_CALL_CLIENT" envDefault:"agent"`
	ReleaseTimeout time.Duration `env:"CALLCTL_RELEASE_TIMEOUT" envDefault:"10s"`
	SimJoinDelay   time.Duration `env:"CALLCTL_SIM_JOIN_DELAY" envDefault:"500ms"`

	JoinAudio             string `env:"CALLCTL_JOIN_AUDIO" envDefault:"default"`
	JoinVideo             string `env:"CALLCTL_JOIN_VIDEO" envDefault:"default"`
	JoinTopology          string `env:"CALLCTL_JOIN_TOPOLOGY"`
	JoinDevicePermissions string `env:"CALLCTL_JOIN_DEVICE_PERMISSIONS" envDefault:"prompt"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Provisioner {
	case ProvisionerStatic:
		if _, err := domain.ParseRoomURL(c.StaticRoomURL); err != nil {
			return fmt.Errorf("CALLCTL_STATIC_ROOM_URL: %w", err)
		}
	case ProvisionerDaily:
		if c.DailyAPIKey == "" {
			return errors.New("CALLCTL_DAILY_API_KEY is required with the daily provisioner")
		}
	default:
		return fmt.Errorf("unknown provisioner %q", c.Provisioner)
	}

	switch c.CallClient {
	case CallClientAgent, CallClientMemory:
	default:
		return fmt.Errorf("unknown call client %q", c.CallClient)
	}

	if c.ReleaseTimeout <= 0 {
		return errors.New("CALLCTL_RELEASE_TIMEOUT must be positive")
	}
	if _, err := c.JoinOptions(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c Config) JoinOptions() (domain.JoinOptions, error) {
	opts := domain.DefaultJoinOptions()
	var err error
	if opts.AudioSource, err = domain.ParseInputSource(c.JoinAudio); err != nil {
		return opts, fmt.Errorf("CALLCTL_JOIN_AUDIO: %w", err)
	}
	if opts.VideoSource, err = domain.ParseInputSource(c.JoinVideo); err != nil {
		return opts, fmt.Errorf("CALLCTL_JOIN_VIDEO: %w", err)
	}
	if opts.Topology, err = domain.ParseTopology(c.JoinTopology); err != nil {
		return opts, fmt.Errorf("CALLCTL_JOIN_TOPOLOGY: %w", err)
	}
	switch p := domain.DevicePermissions(c.JoinDevicePermissions); p {
	case domain.PermissionsPrompt, domain.PermissionsSkip:
		opts.DevicePermissions = p
	default:
		return opts, fmt.Errorf("CALLCTL_JOIN_DEVICE_PERMISSIONS: unknown value %q", c.JoinDevicePermissions)
	}
	return opts, nil
}

func (c Config) Level() (zerolog.Level, error) {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("CALLCTL_LOG_LEVEL: %w", err)
	}
	return l, nil
}
