package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overlay is the YAML overlay file format.
//
// Only settings that are safe to change at runtime are part of the overlay.
// Bind address, port, and worker count are fixed at process start by the
// launch contract, so they deliberately have no overlay fields.
//
// All fields are pointers so that absent keys leave the environment-derived
// value untouched.
type Overlay struct {
	Log *struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`

	Metrics *struct {
		Enabled  *bool          `yaml:"enabled"`
		Interval *time.Duration `yaml:"interval"`
	} `yaml:"metrics"`

	Upstream *struct {
		BaseURL      *string        `yaml:"base_url"`
		APIKey       *string        `yaml:"api_key"`
		Timeout      *time.Duration `yaml:"timeout"`
		PollInterval *time.Duration `yaml:"poll_interval"`
	} `yaml:"upstream"`

	RateLimit *struct {
		RPS   *float64 `yaml:"rps"`
		Burst *int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// LoadOverlay parses the overlay file at path.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay file: %w", err)
	}

	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse overlay file %s: %w", path, err)
	}

	return &o, nil
}

// Apply merges the overlay into a copy of cfg and validates the result.
// The input configuration is not modified; on validation failure the
// previous configuration stays in effect.
func (o *Overlay) Apply(cfg *Config) (*Config, error) {
	merged := *cfg

	if o.Log != nil {
		if o.Log.Level != nil {
			merged.Log.Level = *o.Log.Level
		}
		if o.Log.Format != nil {
			merged.Log.Format = *o.Log.Format
		}
	}
	if o.Metrics != nil {
		if o.Metrics.Enabled != nil {
			merged.Metrics.Enabled = *o.Metrics.Enabled
		}
		if o.Metrics.Interval != nil {
			merged.Metrics.Interval = *o.Metrics.Interval
		}
	}
	if o.Upstream != nil {
		if o.Upstream.BaseURL != nil {
			merged.Upstream.BaseURL = *o.Upstream.BaseURL
		}
		if o.Upstream.APIKey != nil {
			merged.Upstream.APIKey = *o.Upstream.APIKey
		}
		if o.Upstream.Timeout != nil {
			merged.Upstream.Timeout = *o.Upstream.Timeout
		}
		if o.Upstream.PollInterval != nil {
			merged.Upstream.PollInterval = *o.Upstream.PollInterval
		}
	}
	if o.RateLimit != nil {
		if o.RateLimit.RPS != nil {
			merged.Server.RateLimitRPS = *o.RateLimit.RPS
		}
		if o.RateLimit.Burst != nil {
			merged.Server.RateLimitBurst = *o.RateLimit.Burst
		}
	}

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("overlay produces invalid configuration: %w", err)
	}

	return &merged, nil
}
