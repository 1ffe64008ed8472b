// Package config loads the server configuration from YAML files.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robfig/cron/v3"
)

// Server is the validated server configuration.
type Server struct {
	ListenAddr      string
	PollInterval    time.Duration
	MaxConcurrent   int
	DrainTimeout    time.Duration
	CheckpointEvery int
	Provider        Provider
	Schedules       []Schedule
}

// Provider is the market data provider configuration.
type Provider struct {
	BaseURL string
	APIKey  string
	Fake    bool
}

// Schedule is a recurring task submission.
type Schedule struct {
	Name     string
	Cron     string
	TaskType string
	Params   json.RawMessage
}

// YAMLRepository loads server configuration from YAML files.
type YAMLRepository struct {
	fs fs.FS
}

// NewYAMLRepository creates a new YAML config repository.
func NewYAMLRepository(filesystem fs.FS) *YAMLRepository {
	return &YAMLRepository{fs: filesystem}
}

// GetServerConfig loads the server configuration from a YAML file and
// returns a validated config with defaults applied.
func (r *YAMLRepository) GetServerConfig(ctx context.Context, path string) (Server, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return Server{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return Server{}, ctx.Err()
	}

	var cfg serverYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Server{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Server{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg.toModel()
}

// serverYAML represents the YAML structure for the server configuration.
type serverYAML struct {
	ListenAddr      string         `yaml:"listen_addr"`
	PollInterval    string         `yaml:"poll_interval"`
	MaxConcurrent   int            `yaml:"max_concurrent"`
	DrainTimeout    string         `yaml:"drain_timeout"`
	CheckpointEvery int            `yaml:"checkpoint_every"`
	Provider        providerYAML   `yaml:"provider"`
	Schedules       []scheduleYAML `yaml:"schedules"`
}

type providerYAML struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Fake    bool   `yaml:"fake"`
}

type scheduleYAML struct {
	Name     string         `yaml:"name"`
	Cron     string         `yaml:"cron"`
	TaskType string         `yaml:"task_type"`
	Params   map[string]any `yaml:"params"`
}

func (c serverYAML) validate() error {
	if _, err := parseDuration("poll_interval", c.PollInterval); err != nil {
		return err
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent cannot be negative, got: %d", c.MaxConcurrent)
	}
	if _, err := parseDuration("drain_timeout", c.DrainTimeout); err != nil {
		return err
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("checkpoint_every cannot be negative, got: %d", c.CheckpointEvery)
	}

	if !c.Provider.Fake && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url is required unless fake is set")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedule name is required")
		}
		if s.TaskType == "" {
			return fmt.Errorf("schedule %q: task_type is required", s.Name)
		}
		if _, err := parser.Parse(s.Cron); err != nil {
			return fmt.Errorf("schedule %q: invalid cron expression %q: %w", s.Name, s.Cron, err)
		}
	}

	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative, got: %s", field, d)
	}

	return d, nil
}

func (c serverYAML) toModel() (Server, error) {
	pollInterval, err := parseDuration("poll_interval", c.PollInterval)
	if err != nil {
		return Server{}, err
	}
	drainTimeout, err := parseDuration("drain_timeout", c.DrainTimeout)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		ListenAddr:      c.ListenAddr,
		PollInterval:    pollInterval,
		MaxConcurrent:   c.MaxConcurrent,
		DrainTimeout:    drainTimeout,
		CheckpointEvery: c.CheckpointEvery,
		Provider: Provider{
			BaseURL: c.Provider.BaseURL,
			APIKey:  c.Provider.APIKey,
			Fake:    c.Provider.Fake,
		},
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	for _, s := range c.Schedules {
		sch := Schedule{
			Name:     s.Name,
			Cron:     s.Cron,
			TaskType: s.TaskType,
		}
		if s.Params != nil {
			params, err := json.Marshal(s.Params)
			if err != nil {
				return Server{}, fmt.Errorf("schedule %q: could not encode params: %w", s.Name, err)
			}
			sch.Params = params
		}
		cfg.Schedules = append(cfg.Schedules, sch)
	}

	return cfg, nil
}
