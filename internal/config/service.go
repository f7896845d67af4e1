package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/ld2415h/internal/ld2415h"
	"github.com/banshee-data/ld2415h/internal/serialmux"
	"github.com/banshee-data/ld2415h/internal/units"
)

// Defaults applied when a field is omitted from the config file.
const (
	DefaultPort               = "/dev/ttyUSB0"
	DefaultListen             = ":8080"
	DefaultDBPath             = "ld2415h.db"
	DefaultDisplayUnits       = units.MPH
	DefaultConfigPollInterval = 10 * time.Minute
	maxFileSize               = 1 * 1024 * 1024
)

// ServiceConfig is the radar service configuration. The same schema is
// accepted as JSON, YAML or TOML. Fields omitted from the file fall back to
// the Get* defaults, so partial configs are safe.
type ServiceConfig struct {
	Port   *string                `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`
	Serial *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty" toml:"serial,omitempty"`
	Listen *string                `json:"listen,omitempty" yaml:"listen,omitempty" toml:"listen,omitempty"`
	DBPath *string                `json:"db_path,omitempty" yaml:"db_path,omitempty" toml:"db_path,omitempty"`

	// DisplayUnits is the unit the HTTP API reports speeds in.
	DisplayUnits *string `json:"display_units,omitempty" yaml:"display_units,omitempty" toml:"display_units,omitempty"`

	// ConfigPollInterval is a duration string like "10m"; "0s" disables polling.
	ConfigPollInterval   *string `json:"config_poll_interval,omitempty" yaml:"config_poll_interval,omitempty" toml:"config_poll_interval,omitempty"`
	RequestConfigOnStart *bool   `json:"request_config_on_start,omitempty" yaml:"request_config_on_start,omitempty" toml:"request_config_on_start,omitempty"`
	FrameCapacity        *int    `json:"frame_capacity,omitempty" yaml:"frame_capacity,omitempty" toml:"frame_capacity,omitempty"`
	DisableRadar         *bool   `json:"disable_radar,omitempty" yaml:"disable_radar,omitempty" toml:"disable_radar,omitempty"`
}

// Defaults returns a ServiceConfig with every field set to its default.
func Defaults() *ServiceConfig {
	port := DefaultPort
	listen := DefaultListen
	dbPath := DefaultDBPath
	displayUnits := DefaultDisplayUnits
	poll := DefaultConfigPollInterval.String()
	requestOnStart := true
	frameCapacity := ld2415h.DefaultFrameCapacity
	disable := false
	serial, _ := serialmux.PortOptions{}.Normalise()
	return &ServiceConfig{
		Port:                 &port,
		Serial:               &serial,
		Listen:               &listen,
		DBPath:               &dbPath,
		DisplayUnits:         &displayUnits,
		ConfigPollInterval:   &poll,
		RequestConfigOnStart: &requestOnStart,
		FrameCapacity:        &frameCapacity,
		DisableRadar:         &disable,
	}
}

// Load reads a ServiceConfig from path. The decoder is chosen by the file
// extension: .json, .yaml/.yml or .toml.
func Load(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ServiceConfig{}
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("failed to parse config TOML: unknown keys %s", strings.Join(keys, ", "))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Port != nil && strings.TrimSpace(*c.Port) == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if c.DisplayUnits != nil && !units.IsValid(*c.DisplayUnits) {
		return fmt.Errorf("display_units must be one of %s, got %q", units.GetValidUnitsString(), *c.DisplayUnits)
	}
	if c.ConfigPollInterval != nil && *c.ConfigPollInterval != "" {
		d, err := time.ParseDuration(*c.ConfigPollInterval)
		if err != nil {
			return fmt.Errorf("invalid config_poll_interval '%s': %w", *c.ConfigPollInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("config_poll_interval must be non-negative, got %s", d)
		}
	}
	if c.FrameCapacity != nil && *c.FrameCapacity < 1 {
		return fmt.Errorf("frame_capacity must be positive, got %d", *c.FrameCapacity)
	}
	return nil
}

// GetPort returns the serial device path or the default.
func (c *ServiceConfig) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return DefaultPort
	}
	return *c.Port
}

// GetSerial returns the normalised serial options. Invalid options fall back
// to the defaults; Validate reports them.
func (c *ServiceConfig) GetSerial() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	normalised, err := opts.Normalise()
	if err != nil {
		normalised, _ = serialmux.PortOptions{}.Normalise()
	}
	return normalised
}

// GetListen returns the HTTP listen address or the default.
func (c *ServiceConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetDBPath returns the sqlite database path or the default.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetDisplayUnits returns the API display unit or the default.
func (c *ServiceConfig) GetDisplayUnits() string {
	if c.DisplayUnits == nil || !units.IsValid(*c.DisplayUnits) {
		return DefaultDisplayUnits
	}
	return *c.DisplayUnits
}

// GetConfigPollInterval parses and returns ConfigPollInterval.
func (c *ServiceConfig) GetConfigPollInterval() time.Duration {
	if c.ConfigPollInterval == nil || *c.ConfigPollInterval == "" {
		return DefaultConfigPollInterval
	}
	d, err := time.ParseDuration(*c.ConfigPollInterval)
	if err != nil || d < 0 {
		return DefaultConfigPollInterval
	}
	return d
}

// GetRequestConfigOnStart returns the request_config_on_start value or the default.
func (c *ServiceConfig) GetRequestConfigOnStart() bool {
	if c.RequestConfigOnStart == nil {
		return true
	}
	return *c.RequestConfigOnStart
}

// GetFrameCapacity returns the frame buffer capacity or the default.
func (c *ServiceConfig) GetFrameCapacity() int {
	if c.FrameCapacity == nil || *c.FrameCapacity < 1 {
		return ld2415h.DefaultFrameCapacity
	}
	return *c.FrameCapacity
}

// GetDisableRadar returns the disable_radar value or the default.
func (c *ServiceConfig) GetDisableRadar() bool {
	if c.DisableRadar == nil {
		return false
	}
	return *c.DisableRadar
}
