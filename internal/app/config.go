package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/specialistvlad/esxigrid/internal/state"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks errors caused by the operator's configuration
// rather than by the infrastructure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Provider backends.
const (
	ProviderVSphere = "vsphere"
	ProviderMemory  = "memory"
)

// DefaultESXiPort is the HTTPS port of the ESXi SDK endpoint.
const DefaultESXiPort = 443

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPaths are HCL files or directories describing desired state.
	ConfigPaths []string `yaml:"config_paths"`

	State    StateConfig    `yaml:"state"`
	Provider ProviderConfig `yaml:"provider"`

	Workers     int           `yaml:"workers"`
	CallTimeout time.Duration `yaml:"call_timeout"`

	LogFormat       string `yaml:"log_format"`
	LogLevel        string `yaml:"log_level"`
	HealthcheckPort int    `yaml:"healthcheck_port"`
}

// StateConfig selects the state store.
type StateConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ProviderConfig selects the backend and how to reach it.
type ProviderConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Insecure skips TLS verification, which stock ESXi hosts need for
	// their self-signed certificates.
	Insecure bool `yaml:"insecure"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		State: StateConfig{
			Driver: state.DriverSQLite,
			DSN:    state.DefaultSQLitePath,
		},
		Provider: ProviderConfig{
			Type: ProviderVSphere,
			Port: DefaultESXiPort,
		},
		Workers:     engine.DefaultWorkers,
		CallTimeout: engine.DefaultCallTimeout,
		LogFormat:   "text",
		LogLevel:    "info",
	}
}

// LoadFile reads a YAML configuration file on top of the defaults. An empty
// path yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read config: %w", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse config %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv fills connection settings left empty from ESXI_HOST,
// ESXI_USERNAME, ESXI_PASSWORD and ESXI_SSL_PORT.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if c.Provider.Host == "" {
		c.Provider.Host = getenv("ESXI_HOST")
	}
	if c.Provider.Username == "" {
		c.Provider.Username = getenv("ESXI_USERNAME")
	}
	if c.Provider.Password == "" {
		c.Provider.Password = getenv("ESXI_PASSWORD")
	}
	if port := getenv("ESXI_SSL_PORT"); port != "" && (c.Provider.Port == 0 || c.Provider.Port == DefaultESXiPort) {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: ESXI_SSL_PORT: %w", ErrInvalidConfig, err)
		}
		c.Provider.Port = n
	}
	return nil
}

// NewConfig validates cfg and returns a copy ready for NewApp.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if err := checkLogFormat(cfg.LogFormat); err != nil {
		return nil, err
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("%w: call-timeout must be positive, got %s", ErrInvalidConfig, cfg.CallTimeout)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("%w: healthcheck-port %d is out of range", ErrInvalidConfig, cfg.HealthcheckPort)
	}

	switch cfg.State.Driver {
	case state.DriverSQLite:
		if cfg.State.DSN == "" {
			cfg.State.DSN = state.DefaultSQLitePath
		}
	case state.DriverPostgres:
		if cfg.State.DSN == "" {
			return nil, fmt.Errorf("%w: the postgres state driver needs a DSN", ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown state driver %q", ErrInvalidConfig, cfg.State.Driver)
	}

	switch cfg.Provider.Type {
	case ProviderMemory:
	case ProviderVSphere:
		if cfg.Provider.Host == "" {
			return nil, fmt.Errorf("%w: the vsphere provider needs a host (set --esxi-host or ESXI_HOST)", ErrInvalidConfig)
		}
		if cfg.Provider.Username == "" {
			return nil, fmt.Errorf("%w: the vsphere provider needs a username (set --esxi-username or ESXI_USERNAME)", ErrInvalidConfig)
		}
		if cfg.Provider.Port <= 0 || cfg.Provider.Port > 65535 {
			return nil, fmt.Errorf("%w: esxi port %d is out of range", ErrInvalidConfig, cfg.Provider.Port)
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q: must be 'vsphere' or 'memory'", ErrInvalidConfig, cfg.Provider.Type)
	}

	return &cfg, nil
}
