package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/d21d3q/meterbus/internal/units"
)

// Config is the collector configuration. Units lists preferred display
// units, at most one per quantity, e.g. "mwh".
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Metrics  MetricsConfig `yaml:"metrics"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Units    []string      `yaml:"units"`
	Meters   []MeterConfig `yaml:"meters"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// MeterConfig names a meter and pins it to a driver. An empty Driver lets
// the collector pick one from the telegram header.
type MeterConfig struct {
	Name   string `yaml:"name"`
	ID     string `yaml:"id"`
	Driver string `yaml:"driver"`
}

var meterIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document, fills in defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "meterbus"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "meterbus"
	}
	for i := range c.Meters {
		c.Meters[i].ID = strings.ToUpper(c.Meters[i].ID)
		if c.Meters[i].Name == "" {
			c.Meters[i].Name = c.Meters[i].ID
		}
	}
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if _, err := c.PreferredUnits(); err != nil {
		return err
	}
	names := make(map[string]bool, len(c.Meters))
	for i, m := range c.Meters {
		if !meterIDPattern.MatchString(m.ID) {
			return fmt.Errorf("meters[%d].id %q must be 8 hex digits", i, m.ID)
		}
		if names[m.Name] {
			return fmt.Errorf("meters[%d].name %q is used twice", i, m.Name)
		}
		names[m.Name] = true
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// PreferredUnits maps each listed unit onto its quantity.
func (c *Config) PreferredUnits() (map[units.Quantity]units.Unit, error) {
	prefer := make(map[units.Quantity]units.Unit, len(c.Units))
	for _, name := range c.Units {
		u, err := units.ParseUnit(name)
		if err != nil {
			return nil, fmt.Errorf("units: %w", err)
		}
		if prev, dup := prefer[u.Quantity()]; dup {
			return nil, fmt.Errorf("units: %s and %s are both %s units", prev, u, u.Quantity())
		}
		prefer[u.Quantity()] = u
	}
	return prefer, nil
}

// Meter returns the configuration for the meter with the given id.
func (c *Config) Meter(id string) (MeterConfig, bool) {
	for _, m := range c.Meters {
		if m.ID == id {
			return m, true
		}
	}
	return MeterConfig{}, false
}
