// Package config loads bridge configuration from defaults, an optional config
// file and LPA_BRIDGE_* environment variables.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SimplyPrint/lpa-bridge/internal/settings"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 32146
	// DefaultUSBSlotID is the slot of the USB passthrough channel, which the
	// active-profile safeguard never applies to.
	DefaultUSBSlotID = 99
)

// Config is the resolved configuration.
type Config struct {
	Host string
	Port int

	LPACPath   string
	LPACDriver string

	SettingsPath string
	USBSlotID    int
	Privileged   bool

	CallbackTimeout time.Duration
	LogBuffer       int
	LogLevel        string

	// UpdateCheck enables GET /v1/updates. UpdateURL overrides the GitHub
	// releases endpoint.
	UpdateCheck bool
	UpdateURL   string
}

// Address returns host:port for the HTTP listener.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewViper returns a viper instance with defaults and env binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("lpac.path", "lpac")
	v.SetDefault("lpac.driver", "pcsc")
	v.SetDefault("settings.path", "")
	v.SetDefault("usb_slot_id", DefaultUSBSlotID)
	v.SetDefault("privileged", false)
	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("log.buffer", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("updates.check", true)
	v.SetDefault("updates.url", "")

	v.SetEnvPrefix("LPA_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile when non-empty and resolves the configuration from v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		LPACPath:        v.GetString("lpac.path"),
		LPACDriver:      v.GetString("lpac.driver"),
		SettingsPath:    v.GetString("settings.path"),
		USBSlotID:       v.GetInt("usb_slot_id"),
		Privileged:      v.GetBool("privileged"),
		CallbackTimeout: v.GetDuration("callback.timeout"),
		LogBuffer:       v.GetInt("log.buffer"),
		LogLevel:        v.GetString("log.level"),
		UpdateCheck:     v.GetBool("updates.check"),
		UpdateURL:       v.GetString("updates.url"),
	}

	if cfg.SettingsPath == "" {
		path, err := settings.DefaultPath()
		if err != nil {
			return Config{}, fmt.Errorf("resolve settings path: %w", err)
		}
		cfg.SettingsPath = path
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.CallbackTimeout <= 0 {
		return fmt.Errorf("callback.timeout must be positive")
	}
	if c.LPACPath == "" {
		return fmt.Errorf("lpac.path must be set")
	}
	return nil
}
