package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the telemetry settings of a store.
type Config struct {
	// ServiceName identifies the service in telemetry data
	ServiceName string `json:"service_name" yaml:"service_name"`

	// ServiceVersion identifies the service version in telemetry data
	ServiceVersion string `json:"service_version" yaml:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporters lists the exporters to use. Only "stdout" is available since
	// the store never opens network connections.
	Exporters []string `json:"exporters" yaml:"exporters"`

	// SampleRate controls trace sampling (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`

	// PrettyPrint indents exported JSON
	PrettyPrint bool `json:"pretty_print" yaml:"pretty_print"`
}

// DefaultConfig returns an enabled configuration exporting to stdout.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tovs",
		ServiceVersion: "development",
		Enabled:        true,
		Exporters:      []string{"stdout"},
		SampleRate:     1.0,
	}
}

// DisabledConfig returns the defaults with telemetry switched off.
func DisabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = false
	return cfg
}

// LoadFromEnv loads configuration from TOVS_TELEMETRY_* variables, overriding
// current values. Unparseable values are ignored.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("TOVS_TELEMETRY_SERVICE_NAME"); val != "" {
		c.ServiceName = val
	}

	if val := os.Getenv("TOVS_TELEMETRY_SERVICE_VERSION"); val != "" {
		c.ServiceVersion = val
	}

	if val := os.Getenv("TOVS_TELEMETRY_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Enabled = enabled
		}
	}

	if val := os.Getenv("TOVS_TELEMETRY_EXPORTERS"); val != "" {
		c.Exporters = strings.Split(val, ",")
		for i := range c.Exporters {
			c.Exporters[i] = strings.TrimSpace(c.Exporters[i])
		}
	}

	if val := os.Getenv("TOVS_TELEMETRY_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.SampleRate = rate
		}
	}
}

// Validate checks the configuration for invalid values and returns an error if found.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version cannot be empty")
	}

	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got %f", c.SampleRate)
	}

	for _, exporter := range c.Exporters {
		if exporter != "stdout" {
			return fmt.Errorf("invalid exporter: %s, valid options are: stdout", exporter)
		}
	}

	return nil
}

// HasExporter returns true if the specified exporter is configured.
func (c *Config) HasExporter(name string) bool {
	for _, exporter := range c.Exporters {
		if exporter == name {
			return true
		}
	}
	return false
}
