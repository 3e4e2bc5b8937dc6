// Package cli holds the workflow configuration format and the factories that
// assemble an engine from it. It is shared by the autoloop commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// Duration wraps time.Duration with YAML support for strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StrategyConfig selects a pluggable strategy by kind, with kind-specific
// options decoded later (mapstructure) by the factory.
type StrategyConfig struct {
	Kind    string         `yaml:"kind"`
	Options map[string]any `yaml:"options"`
}

// FirebaseConfig holds the Firestore hosting settings.
type FirebaseConfig struct {
	ProjectID  string `yaml:"project_id"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// ProlificConfig holds the recruitment settings.
type ProlificConfig struct {
	Token            string `yaml:"token"`
	StudyName        string `yaml:"study_name"`
	StudyDescription string `yaml:"study_description"`
	StudyURL         string `yaml:"study_url"`
	CompletionTime   int    `yaml:"completion_time"`
	CompletionCode   string `yaml:"completion_code"`
}

// RunnerConfig selects and configures the experiment runner.
type RunnerConfig struct {
	Kind     string         `yaml:"kind"`
	Interval Duration       `yaml:"interval"`
	Timeout  Duration       `yaml:"timeout"`
	Firebase FirebaseConfig `yaml:"firebase"`
	Prolific ProlificConfig `yaml:"prolific"`
}

// RedisConfig holds the redis store settings.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Kind  string      `yaml:"kind"`
	Redis RedisConfig `yaml:"redis"`
}

// Config is the workflow file format consumed by `autoloop run`.
type Config struct {
	Session string `yaml:"session"`
	Cycles  int    `yaml:"cycles"`
	Log     struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Variables       domain.VariableSet `yaml:"variables"`
	Experimentalist StrategyConfig     `yaml:"experimentalist"`
	Theorist        StrategyConfig     `yaml:"theorist"`
	Runner          RunnerConfig       `yaml:"runner"`
	Store           StoreConfig        `yaml:"store"`
}

// LoadConfig reads and validates a workflow file. Secrets omitted from the
// file are pulled from the environment (PROLIFIC_TOKEN, FIREBASE_API_KEY).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cycles == 0 {
		c.Cycles = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Experimentalist.Kind == "" {
		c.Experimentalist.Kind = "random"
	}
	if c.Theorist.Kind == "" {
		c.Theorist.Kind = "linear"
	}
	if c.Runner.Interval == 0 {
		c.Runner.Interval = Duration(30 * time.Second)
	}
	if c.Runner.Timeout == 0 {
		c.Runner.Timeout = Duration(10 * time.Minute)
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "memory"
	}

	// Kinds of independent/dependent variables follow their section.
	for i := range c.Variables.Independent {
		c.Variables.Independent[i].Kind = domain.Independent
	}
	for i := range c.Variables.Dependent {
		c.Variables.Dependent[i].Kind = domain.Dependent
	}
}

func (c *Config) applyEnv() {
	if c.Runner.Prolific.Token == "" {
		c.Runner.Prolific.Token = os.Getenv("PROLIFIC_TOKEN")
	}
	if c.Runner.Firebase.APIKey == "" {
		c.Runner.Firebase.APIKey = os.Getenv("FIREBASE_API_KEY")
	}
}

func (c *Config) validate() error {
	if err := c.Variables.Validate(); err != nil {
		return err
	}
	if c.Cycles < 1 {
		return fmt.Errorf("cycles must be at least 1, got %d", c.Cycles)
	}

	switch c.Runner.Kind {
	case "firebase":
		if c.Runner.Firebase.ProjectID == "" {
			return fmt.Errorf("runner: firebase.project_id is required")
		}
	case "firebase-prolific":
		if c.Runner.Firebase.ProjectID == "" {
			return fmt.Errorf("runner: firebase.project_id is required")
		}
		if c.Runner.Prolific.Token == "" {
			return fmt.Errorf("runner: prolific.token is required (or set PROLIFIC_TOKEN)")
		}
		if c.Runner.Prolific.StudyName == "" {
			return fmt.Errorf("runner: prolific.study_name is required")
		}
		if c.Runner.Prolific.StudyURL == "" {
			return fmt.Errorf("runner: prolific.study_url is required")
		}
	case "":
		return fmt.Errorf("runner: kind is required (firebase or firebase-prolific)")
	default:
		return fmt.Errorf("runner: unknown kind %q", c.Runner.Kind)
	}

	switch c.Store.Kind {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store: redis.addr is required")
		}
	default:
		return fmt.Errorf("store: unknown kind %q", c.Store.Kind)
	}

	return nil
}
