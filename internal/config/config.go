// Package config is used to load the configuration file
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/blacktop/go-idevice/pkg/usb/event"
	"github.com/blacktop/go-idevice/pkg/usb/mobilesync"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	DefaultDataClass   = "com.apple.Contacts"
	DefaultHostVersion = 106
	DefaultEventSource = "usbmuxd"
)

type usbmux struct {
	Socket string `mapstructure:"socket"`
}

type syncConfig struct {
	Label       string              `mapstructure:"label"`
	DataClass   string              `mapstructure:"data_class"`
	HostVersion uint64              `mapstructure:"host_version"`
	Mode        mobilesync.SyncType `mapstructure:"mode"`
	Announce    bool                `mapstructure:"announce"`
	Timeout     time.Duration       `mapstructure:"timeout"`
}

type events struct {
	Source    string `mapstructure:"source"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Config is the configuration struct
type Config struct {
	USBMux  usbmux     `mapstructure:"usbmux"`
	Backend string     `mapstructure:"backend"`
	Sync    syncConfig `mapstructure:"sync"`
	Events  events     `mapstructure:"events"`
}

func (c *Config) verify() error {
	if c.USBMux.Socket != "" {
		if _, _, err := usb.ParseSocketAddress(c.USBMux.Socket); err != nil {
			return fmt.Errorf("config: usbmux.socket: %v", err)
		}
	}

	if c.Backend == "" {
		c.Backend = mobilesync.DefaultBackend
	} else if !slices.Contains(mobilesync.Backends(), c.Backend) {
		return fmt.Errorf("config: unknown backend %q (available: %v)", c.Backend, mobilesync.Backends())
	}

	if c.Sync.Label == "" {
		c.Sync.Label = usb.BundleID
	}
	if c.Sync.DataClass == "" {
		c.Sync.DataClass = DefaultDataClass
	}
	if c.Sync.HostVersion == 0 {
		c.Sync.HostVersion = DefaultHostVersion
	}
	if c.Sync.Timeout < 0 {
		return fmt.Errorf("config: sync.timeout must not be negative")
	}

	if c.Events.Source == "" {
		c.Events.Source = DefaultEventSource
	} else if !slices.Contains(event.Sources(), c.Events.Source) {
		return fmt.Errorf("config: unknown event source %q (available: %v)", c.Events.Source, event.Sources())
	}
	if c.Events.CacheSize < 0 {
		return fmt.Errorf("config: events.cache_size must not be negative")
	} else if c.Events.CacheSize == 0 {
		c.Events.CacheSize = usb.DefaultListenerCacheSize
	}

	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	return load(viper.GetViper())
}

// keys are bound to the environment so IDEVICE_SYNC_DATA_CLASS and friends
// apply even without a config file.
var keys = []string{
	"usbmux.socket",
	"backend",
	"sync.label",
	"sync.data_class",
	"sync.host_version",
	"sync.mode",
	"sync.announce",
	"sync.timeout",
	"events.source",
	"events.cache_size",
}

func load(v *viper.Viper) (*Config, error) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: failed to bind %s: %v", key, err)
		}
	}

	c := &Config{
		Sync: syncConfig{Mode: mobilesync.Slow},
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(c, hook); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
