// Package config loads the runner configuration from YAML with
// environment variable substitution.
package config

import (
	"os"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration accepts YAML strings like "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full runner configuration.
type Config struct {
	Service      Service      `yaml:"service"`
	Redis        Redis        `yaml:"redis"`
	LLM          LLM          `yaml:"llm"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Pipeline     Pipeline     `yaml:"pipeline"`
}

type Service struct {
	Name            string   `yaml:"name"`
	ListenAddr      string   `yaml:"listen_addr"`
	Workers         int      `yaml:"workers"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type Redis struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	JobStream    string `yaml:"job_stream"`
	WorkerGroup  string `yaml:"worker_group"`
	ResultPrefix string `yaml:"result_prefix"`
}

type LLM struct {
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ClassifyIntent bool   `yaml:"classify_intent"`
}

type Orchestrator struct {
	BaseURL string `yaml:"base_url"`
}

type Pipeline struct {
	HTTPTimeout Duration `yaml:"http_timeout"`
}

// envPattern matches ${VAR} placeholders in the raw YAML.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file, substitutes ${VAR} placeholders from
// the environment, and applies defaults. Unset variables substitute as
// empty strings.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(raw)
}

// Parse decodes raw YAML config bytes.
func Parse(raw []byte) (*Config, error) {
	expanded := envPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := &Config{}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "agentrunner"
	}
	if c.Service.ListenAddr == "" {
		c.Service.ListenAddr = ":8090"
	}
	if c.Service.Workers < 1 {
		c.Service.Workers = 4
	}
	if c.Service.LogLevel == "" {
		c.Service.LogLevel = "info"
	}
	if c.Service.LogFormat == "" {
		c.Service.LogFormat = "text"
	}
	if c.Service.ShutdownTimeout == 0 {
		c.Service.ShutdownTimeout = Duration(30 * time.Second)
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.JobStream == "" {
		c.Redis.JobStream = "agent_jobs"
	}
	if c.Redis.WorkerGroup == "" {
		c.Redis.WorkerGroup = "agent_workers"
	}
	if c.Redis.ResultPrefix == "" {
		c.Redis.ResultPrefix = "agent_result"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.Orchestrator.BaseURL == "" {
		c.Orchestrator.BaseURL = "http://localhost:8080"
	}
	if c.Pipeline.HTTPTimeout == 0 {
		c.Pipeline.HTTPTimeout = Duration(30 * time.Second)
	}
}

// Validate checks the parts that cannot be defaulted.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required (set OPENAI_API_KEY)")
	}
	return nil
}
