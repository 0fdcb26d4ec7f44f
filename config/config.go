package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/nomis52/taskflow/logging"
	"github.com/nomis52/taskflow/workflow"
	"gopkg.in/yaml.v3"
)

const (
	// Default monitoring settings
	defaultMetricsPrefix = "taskflow"
	defaultJobName       = "taskflow"
	defaultPushTimeout   = 30 * time.Second

	// Default engine settings
	defaultFailurePolicy = "fail_fast"
	defaultBackoff       = "constant"

	// Default server settings
	defaultListenAddr      = ":8080"
	defaultHistorySize     = 50
	defaultShutdownTimeout = 30 * time.Second
)

// Config represents the complete application configuration
type Config struct {
	Logging    logging.Config   `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Engine     EngineConfig     `yaml:"engine"`
	Server     ServerConfig     `yaml:"server"`

	// Workflows lists definition files (.yaml, .yml or .hcl). Relative paths
	// are resolved against the directory of the config file.
	Workflows []string `yaml:"workflows"`
}

// MonitoringConfig holds metrics settings. Push mode is enabled when
// VictoriaMetricsURL is set.
type MonitoringConfig struct {
	VictoriaMetricsURL string        `yaml:"victoriametrics_url"`
	MetricsPrefix      string        `yaml:"metrics_prefix"`
	JobName            string        `yaml:"jobname"`
	Instance           string        `yaml:"instance"`
	PushTimeout        time.Duration `yaml:"push_timeout"`
}

// EngineConfig holds the defaults applied to every workflow run.
type EngineConfig struct {
	// FailurePolicy is fail_fast or continue_on_error.
	FailurePolicy string `yaml:"failure_policy"`

	// MaxConcurrency caps running tasks per workflow; 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Timeout aborts a workflow run; 0 means none.
	Timeout time.Duration `yaml:"timeout"`

	// Retry settings for tasks that do not declare their own.
	DefaultRetryCount int           `yaml:"default_retry_count"`
	DefaultRetryDelay time.Duration `yaml:"default_retry_delay"`
	DefaultBackoff    string        `yaml:"default_backoff"`
}

// ServerConfig holds settings for taskflow serve.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// Cron schedules runs, e.g. "etl,report:0 2 * * *;cleanup:*/15 * * * *".
	Cron string `yaml:"cron"`

	// HistorySize is the number of finished runs kept in memory.
	HistorySize int `yaml:"history_size"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS is enabled when both files are set. Renewed certificates are
	// picked up without a restart.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if _, err := workflow.ParseFailurePolicy(c.Engine.FailurePolicy); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if _, err := workflow.ParseBackoff(c.Engine.DefaultBackoff); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Engine.MaxConcurrency < 0 {
		return errors.New("engine: max_concurrency must not be negative")
	}
	if c.Engine.Timeout < 0 {
		return errors.New("engine: timeout must not be negative")
	}
	if c.Engine.DefaultRetryCount < 0 {
		return errors.New("engine: default_retry_count must not be negative")
	}
	if c.Engine.DefaultRetryDelay < 0 {
		return errors.New("engine: default_retry_delay must not be negative")
	}
	if c.Server.HistorySize < 0 {
		return errors.New("server: history_size must not be negative")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return errors.New("server: tls_cert_file and tls_key_file must be set together")
	}
	for i, path := range c.Workflows {
		if path == "" {
			return fmt.Errorf("workflows[%d]: path is required", i)
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()

	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Monitoring.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.Monitoring.Instance = host
		}
	}
	if c.Monitoring.PushTimeout == 0 {
		c.Monitoring.PushTimeout = defaultPushTimeout
	}

	if c.Engine.FailurePolicy == "" {
		c.Engine.FailurePolicy = defaultFailurePolicy
	}
	if c.Engine.DefaultBackoff == "" {
		c.Engine.DefaultBackoff = defaultBackoff
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.HistorySize == 0 {
		c.Server.HistorySize = defaultHistorySize
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
}

// WorkflowOptions translates the engine section into workflow options.
// Validate must have succeeded.
func (c *Config) WorkflowOptions() []workflow.Option {
	policy, _ := workflow.ParseFailurePolicy(c.Engine.FailurePolicy)
	return []workflow.Option{
		workflow.WithFailurePolicy(policy),
		workflow.WithMaxConcurrency(c.Engine.MaxConcurrency),
		workflow.WithTimeout(c.Engine.Timeout),
	}
}

// DefaultRetry returns the retry policy for tasks that do not set one.
func (c *Config) DefaultRetry() workflow.RetryPolicy {
	backoff, _ := workflow.ParseBackoff(c.Engine.DefaultBackoff)
	return workflow.RetryPolicy{
		Count:   c.Engine.DefaultRetryCount,
		Delay:   c.Engine.DefaultRetryDelay,
		Backoff: backoff,
	}
}

// Redacted returns a copy of the config with the password of the remote
// write URL masked, suitable for display.
func (c *Config) Redacted() Config {
	r := *c
	r.Workflows = append([]string(nil), c.Workflows...)
	if u, err := url.Parse(c.Monitoring.VictoriaMetricsURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			r.Monitoring.VictoriaMetricsURL = u.String()
		}
	}
	return r
}

// LoadConfig reads the YAML config file at the given path, applies defaults
// and validates it. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decoding %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i, p := range cfg.Workflows {
		if p != "" && !filepath.IsAbs(p) {
			cfg.Workflows[i] = filepath.Join(dir, p)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
