// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Serial drivers
const (
	DriverNative = "native" // go.bug.st/serial
	DriverRS485  = "rs485"  // github.com/grid-x/serial with RTS control
)

// DefaultBaudRate is the factory baud rate of NuDAM modules.
const DefaultBaudRate = 9600

// Config defines the global configuration structure
type Config struct {
	Gateways []GatewayConfig `mapstructure:"gateways"`
	Log      LogConfig       `mapstructure:"log"`
	Stats    StatsConfig     `mapstructure:"stats"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	File   string `mapstructure:"file"`   // Log file path
	Format string `mapstructure:"format"` // text, json, console

	// ZeroBasedRegisters prints register addresses starting from 0 instead of
	// the Modbus convention of 1. It only affects log output.
	ZeroBasedRegisters bool `mapstructure:"zero_based_registers"`
}

// StatsConfig defines the diagnostic counters kept per unit ID.
type StatsConfig struct {
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Interval    time.Duration     `mapstructure:"interval"` // Periodic summary, 0 disables
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// GatewayConfig defines a single gateway instance
type GatewayConfig struct {
	Name        string             `mapstructure:"name"`
	Upstreams   []UpstreamConfig   `mapstructure:"upstreams"`
	Downstreams []DownstreamConfig `mapstructure:"downstreams"`
}

// UpstreamConfig defines a master connecting to the gateway
type UpstreamConfig struct {
	Type string    `mapstructure:"type"` // "tcp"
	Tcp  TcpConfig `mapstructure:"tcp"`
}

// DownstreamConfig defines a NuDAM bus the gateway masters
type DownstreamConfig struct {
	Name     string       `mapstructure:"name"`      // Optional name for logging
	Type     string       `mapstructure:"type"`      // "nudam"
	SlaveIDs string       `mapstructure:"slave_ids"` // Routing rules: "1", "1,2", "1-10"
	Serial   SerialConfig `mapstructure:"serial"`

	// LegacyRangeBoundary resolves input register ranges with the
	// "base <= address+1" comparison of earlier bridge releases.
	LegacyRangeBoundary bool `mapstructure:"legacy_range_boundary"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502"
}

// SerialConfig defines the NuDAM bus settings. Framing is always 8-N-1.
type SerialConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	Checksum bool   `mapstructure:"checksum"`
	Driver   string `mapstructure:"driver"` // "native", "rs485"

	// RS485 specific, only honoured by the rs485 driver
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log_level":  "log.level",
	"log_file":   "log.file",
	"log_format": "log.format",
}

// LoadConfig loads configuration from file. Flags of flags named in
// flagKeys take precedence over the file when set; flags may be nil.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/nudamgw/")
		v.AddConfigPath("$HOME/.nudamgw")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("stats.persistence.type", "memory")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Gateways {
		gw := &config.Gateways[i]
		if gw.Name == "" {
			gw.Name = fmt.Sprintf("gateway%d", i)
		}

		for j := range gw.Downstreams {
			ds := &gw.Downstreams[j]
			if ds.Name == "" {
				ds.Name = fmt.Sprintf("%s-bus%d", gw.Name, j)
			}
			fixupSerial(&ds.Serial)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that would otherwise only fail once traffic arrives.
func (c *Config) Validate() error {
	var errs []error
	for _, gw := range c.Gateways {
		for _, us := range gw.Upstreams {
			if us.Type == "tcp" && us.Tcp.Address == "" {
				errs = append(errs, fmt.Errorf("gateway %s: tcp upstream without address", gw.Name))
			}
		}
		for _, ds := range gw.Downstreams {
			if ds.Serial.Device == "" {
				errs = append(errs, fmt.Errorf("gateway %s: downstream %s has no serial device", gw.Name, ds.Name))
			}
			switch ds.Serial.Driver {
			case DriverNative, DriverRS485:
			default:
				errs = append(errs, fmt.Errorf("gateway %s: downstream %s: unknown serial driver %q", gw.Name, ds.Name, ds.Serial.Driver))
			}
		}
	}
	switch c.Stats.Persistence.Type {
	case "", "memory":
	case "file", "mmap":
		if c.Stats.Persistence.Path == "" {
			errs = append(errs, fmt.Errorf("stats: %s persistence needs a path", c.Stats.Persistence.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("stats: unknown persistence type %q", c.Stats.Persistence.Type))
	}
	return errors.Join(errs...)
}

func fixupSerial(s *SerialConfig) {
	s.Driver = strings.ToLower(s.Driver)
	if s.Driver == "" {
		s.Driver = DriverNative
	}
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
}
