package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/vango-dev/statetree/internal/errors"
)

const (
	// ConfigFileName is the preferred configuration file name.
	ConfigFileName = "statetree.yaml"

	// DefaultPort is the default inspector port.
	DefaultPort = 7070

	// DefaultHost is the default inspector host.
	DefaultHost = "localhost"

	// DefaultMetricsPath is where the inspector serves metrics.
	DefaultMetricsPath = "/metrics"

	// DefaultNamespace prefixes metric names.
	DefaultNamespace = "statetree"

	// DefaultTracerName names the OpenTelemetry tracer.
	DefaultTracerName = "github.com/vango-dev/statetree"
)

// configFileNames are tried in order by Load.
var configFileNames = []string{ConfigFileName, "statetree.yml", "statetree.json"}

// Config represents statetree.yaml.
type Config struct {
	// Name labels the served tree in logs.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Debug enables debug logging of named transactions.
	Debug bool `yaml:"debug,omitempty" json:"debug,omitempty"`

	Inspect InspectConfig `yaml:"inspect,omitempty" json:"inspect,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty" json:"log,omitempty"`

	configPath string
}

// InspectConfig configures the inspector server.
type InspectConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// MetricsPath is where metrics are served. "-" disables the endpoint.
	MetricsPath string `yaml:"metrics_path,omitempty" json:"metrics_path,omitempty"`

	// ReadOnly disables write endpoints.
	ReadOnly bool `yaml:"read_only,omitempty" json:"read_only,omitempty"`

	// AllowedOrigins restricts websocket origins. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Disabled  bool      `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Namespace string    `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Subsystem string    `yaml:"subsystem,omitempty" json:"subsystem,omitempty"`
	Buckets   []float64 `yaml:"buckets,omitempty" json:"buckets,omitempty"`
}

// TracingConfig configures OpenTelemetry spans around named transactions.
type TracingConfig struct {
	TracerName string `yaml:"tracer_name,omitempty" json:"tracer_name,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is text or json.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// SlowCompute logs computed evaluations slower than this many
	// milliseconds. Zero disables it.
	SlowComputeMS int `yaml:"slow_compute_ms,omitempty" json:"slow_compute_ms,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the first config file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("S032").
		WithDetail("No statetree.yaml or statetree.json found in " + dir)
}

// LoadFile reads configuration from the given path. JSON files are decoded
// by the same YAML decoder.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("S032").
				WithDetail("No config at " + path)
		}
		return nil, errors.New("S030").Wrap(err)
	}

	cfg := &Config{}
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, errors.New("S030").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check the file against the documented keys: inspect, metrics, tracing, log").
			WithYAMLLocation(path, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the config in dir, or returns defaults when there is
// none. Parse and validation errors are returned.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}

// SaveTo writes the configuration. Paths ending in .json are written as
// JSON, everything else as YAML.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("S030").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("S030").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Inspect.Host == "" {
		c.Inspect.Host = DefaultHost
	}
	if c.Inspect.Port == 0 {
		c.Inspect.Port = DefaultPort
	}
	if c.Inspect.MetricsPath == "" {
		c.Inspect.MetricsPath = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultTracerName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Inspect.Port < 0 || c.Inspect.Port > 65535 {
		return errors.New("S031").
			WithDetail("inspect.port must be between 0 and 65535")
	}
	if p := c.Inspect.MetricsPath; p != "-" && !strings.HasPrefix(p, "/") {
		return errors.New("S031").
			WithDetail(fmt.Sprintf("inspect.metrics_path %q must start with / (or be - to disable)", p))
	}
	if _, err := c.SlogLevel(); err != nil {
		return errors.New("S031").WithDetail(err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("S031").
			WithDetail(fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if !sort.Float64sAreSorted(c.Metrics.Buckets) {
		return errors.New("S031").
			WithDetail("metrics.buckets must be in increasing order")
	}
	return nil
}

// InspectAddress returns the listen address of the inspector.
func (c *Config) InspectAddress() string {
	return fmt.Sprintf("%s:%d", c.Inspect.Host, c.Inspect.Port)
}

// MetricsPath returns the metrics endpoint path, or "" when disabled.
func (c *Config) MetricsPath() string {
	if c.Metrics.Disabled || c.Inspect.MetricsPath == "-" {
		return ""
	}
	return c.Inspect.MetricsPath
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	return level, nil
}

// Logger builds a slog.Logger writing to w per the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	if c.Name != "" {
		logger = logger.With("tree", c.Name)
	}
	return logger
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range configFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir to the first directory holding a
// config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("S032").
				WithDetail("No statetree.yaml found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
