// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/backoff"
)

// EnvConfigPath names the environment variable Load reads.
const EnvConfigPath = "INSIGHTS_AGENT_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the agent.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Root is the base directory for agent data. Available to other
	// fields as ${AGENT_ROOT}.
	Root string `yaml:"root"`

	Identification IdentificationConfig `yaml:"identification"`
	Schedule       ScheduleConfig       `yaml:"schedule"`
	Retry          RetryConfig          `yaml:"retry"`
	Upload         UploadConfig         `yaml:"upload"`
	NATS           NATSConfig           `yaml:"nats"`
	Redis          RedisConfig          `yaml:"redis"`
	Discovery      DiscoveryConfig      `yaml:"discovery"`
	Reports        ReportsConfig        `yaml:"reports"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Log            LogConfig            `yaml:"log"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment.
type ConfigOverrides struct {
	Upload  *UploadConfig  `yaml:"upload,omitempty"`
	Reports *ReportsConfig `yaml:"reports,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// IdentificationConfig names the application being reported.
type IdentificationConfig struct {
	// Name is the top-level application name (app.name). Required.
	Name string `yaml:"name"`

	// OptOut disables all reporting. The agent exits cleanly at
	// startup.
	OptOut bool `yaml:"opt_out"`
}

// ScheduleConfig controls report timing.
type ScheduleConfig struct {
	// ConnectPeriod is the interval between CONNECT reports. The first
	// is sent at startup. Default: 24h
	ConnectPeriod time.Duration `yaml:"connect_period"`

	// UpdatePeriod is the interval between UPDATE checks. Default: 5m
	UpdatePeriod time.Duration `yaml:"update_period"`
}

// RetryConfig controls per-transport exponential backoff.
type RetryConfig struct {
	// InitialDelay is the wait after the first failure. Default: 2s
	InitialDelay time.Duration `yaml:"initial_delay"`

	// Factor multiplies the delay after each failure. Default: 2
	Factor float64 `yaml:"factor"`

	// MaxAttempts is the total number of tries. Default: 10
	MaxAttempts int `yaml:"max_attempts"`
}

// Policy returns the retry settings as a backoff policy.
func (r RetryConfig) Policy() backoff.Policy {
	return backoff.Policy{
		InitialDelay: r.InitialDelay,
		Factor:       r.Factor,
		MaxAttempts:  r.MaxAttempts,
	}
}

// UploadConfig configures the HTTPS transport and the file fallback.
type UploadConfig struct {
	// BaseURL is the collection service origin.
	// Default: https://cert.console.stage.redhat.com
	BaseURL string `yaml:"base_url"`

	// URI is the upload path under BaseURL.
	// Default: /api/ingress/v1/upload
	URI string `yaml:"uri"`

	// Token selects token authentication when set. Usually given as
	// ${INSIGHTS_TOKEN} so the value stays out of the file.
	Token string `yaml:"token"`

	// CertFile and KeyFile are the mutual TLS client credentials, used
	// when Token is empty.
	// Default: /etc/pki/consumer/cert.pem, /etc/pki/consumer/key.pem
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// CAFile replaces the system roots when set.
	CAFile string `yaml:"ca_file"`

	// ProxyHost and ProxyPort route uploads through an HTTP proxy.
	ProxyHost string `yaml:"proxy_host"`
	ProxyPort int    `yaml:"proxy_port"`

	// Timeout bounds one upload request. Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Disabled turns the HTTPS transport off, leaving only fallbacks.
	Disabled bool `yaml:"disabled"`

	// Dir is where the file fallback writes reports.
	// Default: /var/tmp/insights-runtimes/uploads
	Dir string `yaml:"dir"`

	// FileFormat is "json" or "cbor". Default: json
	FileFormat string `yaml:"file_format"`
}

// NATSConfig enables the NATS transport when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RedisConfig enables the Redis transport when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// DiscoveryConfig controls how archives are found and fingerprinted.
type DiscoveryConfig struct {
	// WatchDirs are deployment directories scanned at startup and
	// watched for new archives.
	WatchDirs []string `yaml:"watch_dirs"`

	// Settle is how long a watched file must be quiet before it is
	// fingerprinted. Default: 2s
	Settle time.Duration `yaml:"settle"`

	// Classpath is a path-list of archives reported in every CONNECT.
	Classpath string `yaml:"classpath"`

	// Ignore lists archive file names that are never reported.
	Ignore []string `yaml:"ignore"`

	// SelfPath is the agent's own artifact, excluded from reports.
	// Empty means the running executable.
	SelfPath string `yaml:"self_path"`

	// TempDir is the directory SkipTemp refers to. Default: os.TempDir()
	TempDir string `yaml:"temp_dir"`

	// SkipTemp ignores archives under TempDir. Default: true
	SkipTemp bool `yaml:"skip_temp"`

	// ScratchDir is where containers are unpacked for nested
	// fingerprinting. Default: ${AGENT_ROOT}/scratch
	ScratchDir string `yaml:"scratch_dir"`

	// ExpandContainers reports the archives nested in WAR and EAR
	// files. Default: true
	ExpandContainers bool `yaml:"expand_containers"`

	// Algorithms are the digests computed per archive.
	// Default: [sha1, sha256, sha512]
	Algorithms []string `yaml:"algorithms"`

	// QueueCapacity bounds identities waiting for the next UPDATE.
	// Default: 10000
	QueueCapacity int `yaml:"queue_capacity"`

	// MaxNestedSize bounds a nested archive read into memory.
	// Default: 256 MiB
	MaxNestedSize int64 `yaml:"max_nested_size"`
}

// ReportsConfig controls report content.
type ReportsConfig struct {
	// Validate checks every report against the embedded schema before
	// delivery. Default: false (development), true (production)
	Validate bool `yaml:"validate"`

	// Filtering masks basic facts: default, nothing or redacted.
	// Default: default
	Filtering string `yaml:"filtering"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	// Listen is a host:port for /metrics, e.g. "127.0.0.1:9464".
	Listen string `yaml:"listen"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is auto, text or json. Auto picks text on a terminal.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	defaultRoot := "/var/lib/insights-agent"
	if homeDir, err := os.UserHomeDir(); err == nil && os.Geteuid() != 0 {
		defaultRoot = filepath.Join(homeDir, ".cache", "insights-agent")
	}

	return &Config{
		Environment: Development,
		Root:        defaultRoot,
		Schedule: ScheduleConfig{
			ConnectPeriod: 24 * time.Hour,
			UpdatePeriod:  5 * time.Minute,
		},
		Retry: RetryConfig{
			InitialDelay: 2 * time.Second,
			Factor:       2,
			MaxAttempts:  10,
		},
		Upload: UploadConfig{
			BaseURL:    "https://cert.console.stage.redhat.com",
			URI:        "/api/ingress/v1/upload",
			CertFile:   "/etc/pki/consumer/cert.pem",
			KeyFile:    "/etc/pki/consumer/key.pem",
			Timeout:    30 * time.Second,
			Dir:        "/var/tmp/insights-runtimes/uploads",
			FileFormat: "json",
		},
		NATS:  NATSConfig{Subject: "insights.reports"},
		Redis: RedisConfig{Key: "insights:reports"},
		Discovery: DiscoveryConfig{
			Settle:           2 * time.Second,
			TempDir:          os.TempDir(),
			SkipTemp:         true,
			ScratchDir:       "${AGENT_ROOT}/scratch",
			ExpandContainers: true,
			Algorithms:       []string{"sha1", "sha256", "sha512"},
			QueueCapacity:    10000,
			MaxNestedSize:    256 << 20,
		},
		Reports: ReportsConfig{Filtering: "default"},
		Log:     LogConfig{Level: "info", Format: "auto"},
	}
}

// Load loads configuration from the INSIGHTS_AGENT_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if the variable is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your agent config file, or use --config flag", EnvConfigPath)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// only enter through explicit ${VAR} references in the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: validated reports, no debug logging.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Reports: &ReportsConfig{Validate: true},
				Log:     &LogConfig{Level: "info"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Upload != nil {
		upload := overrides.Upload
		if upload.BaseURL != "" {
			c.Upload.BaseURL = upload.BaseURL
		}
		if upload.URI != "" {
			c.Upload.URI = upload.URI
		}
		if upload.Token != "" {
			c.Upload.Token = upload.Token
		}
		if upload.CertFile != "" {
			c.Upload.CertFile = upload.CertFile
		}
		if upload.KeyFile != "" {
			c.Upload.KeyFile = upload.KeyFile
		}
		if upload.CAFile != "" {
			c.Upload.CAFile = upload.CAFile
		}
		if upload.ProxyHost != "" {
			c.Upload.ProxyHost = upload.ProxyHost
			c.Upload.ProxyPort = upload.ProxyPort
		}
		if upload.Dir != "" {
			c.Upload.Dir = upload.Dir
		}
	}

	if overrides.Reports != nil {
		// Validate is a bool, so we always apply it from overrides.
		c.Reports.Validate = overrides.Reports.Validate
		if overrides.Reports.Filtering != "" {
			c.Reports.Filtering = overrides.Reports.Filtering
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// and credential fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"AGENT_ROOT": c.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["AGENT_ROOT"] = c.Root // Update for dependent paths.

	c.Upload.Token = expandVars(c.Upload.Token, vars)
	c.Upload.CertFile = expandVars(c.Upload.CertFile, vars)
	c.Upload.KeyFile = expandVars(c.Upload.KeyFile, vars)
	c.Upload.CAFile = expandVars(c.Upload.CAFile, vars)
	c.Upload.Dir = expandVars(c.Upload.Dir, vars)
	c.NATS.URL = expandVars(c.NATS.URL, vars)
	c.Redis.URL = expandVars(c.Redis.URL, vars)
	c.Discovery.Classpath = expandVars(c.Discovery.Classpath, vars)
	c.Discovery.SelfPath = expandVars(c.Discovery.SelfPath, vars)
	c.Discovery.TempDir = expandVars(c.Discovery.TempDir, vars)
	c.Discovery.ScratchDir = expandVars(c.Discovery.ScratchDir, vars)
	for i, dir := range c.Discovery.WatchDirs {
		c.Discovery.WatchDirs[i] = expandVars(dir, vars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"auto", "text", "json"}
	fileFormats  = []string{"json", "cbor"}
	filterings   = []string{"default", "nothing", "redacted"}
	environments = []Environment{Development, Staging, Production}
)

// Validate checks the configuration for errors. Every problem is
// reported, joined. A missing identification name carries
// agenterr.IdentificationNotDefined; mutual TLS without readable
// credentials carries agenterr.TLSReadingCertsInvalidMode.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(environments, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if strings.TrimSpace(c.Identification.Name) == "" {
		errs = append(errs, agenterr.New(agenterr.IdentificationNotDefined, "identification.name is required"))
	}

	if c.Schedule.ConnectPeriod <= 0 {
		errs = append(errs, fmt.Errorf("schedule.connect_period must be positive"))
	}
	if c.Schedule.UpdatePeriod <= 0 {
		errs = append(errs, fmt.Errorf("schedule.update_period must be positive"))
	}

	if c.Retry.InitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry.initial_delay must be positive"))
	}
	if c.Retry.Factor < 1 {
		errs = append(errs, fmt.Errorf("retry.factor must be at least 1"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1"))
	}

	if !c.Upload.Disabled {
		if c.Upload.BaseURL == "" {
			errs = append(errs, fmt.Errorf("upload.base_url is required unless upload.disabled"))
		}
		if c.Upload.Token == "" {
			if err := checkReadable(c.Upload.CertFile, "upload.cert_file"); err != nil {
				errs = append(errs, err)
			}
			if err := checkReadable(c.Upload.KeyFile, "upload.key_file"); err != nil {
				errs = append(errs, err)
			}
		}
		if c.Upload.ProxyHost != "" && (c.Upload.ProxyPort <= 0 || c.Upload.ProxyPort > 65535) {
			errs = append(errs, fmt.Errorf("upload.proxy_port must be 1-65535 when upload.proxy_host is set"))
		}
	}
	if c.Upload.Dir == "" {
		errs = append(errs, fmt.Errorf("upload.dir is required"))
	}
	if !slices.Contains(fileFormats, c.Upload.FileFormat) {
		errs = append(errs, fmt.Errorf("upload.file_format must be one of: %v", fileFormats))
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, fmt.Errorf("nats.subject is required when nats.url is set"))
	}
	if c.Redis.URL != "" && c.Redis.Key == "" {
		errs = append(errs, fmt.Errorf("redis.key is required when redis.url is set"))
	}

	if c.Discovery.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("discovery.queue_capacity must be positive"))
	}
	if c.Discovery.MaxNestedSize <= 0 {
		errs = append(errs, fmt.Errorf("discovery.max_nested_size must be positive"))
	}
	if len(c.Discovery.Algorithms) == 0 {
		errs = append(errs, fmt.Errorf("discovery.algorithms must name at least one digest"))
	}

	if !slices.Contains(filterings, strings.ToLower(c.Reports.Filtering)) {
		errs = append(errs, fmt.Errorf("reports.filtering must be one of: %v", filterings))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// checkReadable reports a mutual TLS credential that cannot be opened.
func checkReadable(path, field string) error {
	if path == "" {
		return agenterr.New(agenterr.TLSReadingCertsInvalidMode, field+" is required when upload.token is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return agenterr.Wrap(agenterr.TLSReadingCertsInvalidMode, field+" is not readable and upload.token is empty", err)
	}
	return file.Close()
}

// EnsurePaths creates the directories the agent writes into.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Root, c.Discovery.ScratchDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
