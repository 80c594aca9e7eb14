package graphrun

import (
	"errors"
	"fmt"

	"github.com/viant/graphrun/service/allocator"
	"github.com/viant/graphrun/service/messaging/memory"
	"github.com/viant/graphrun/service/processor"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StoreFS       = "fs"
	StorePostgres = "postgres"
)

// Config is a serialisable representation of the engine configuration. It can be
// populated from YAML, JSON or environment variables (see internal/config). The
// zero-value of each nested section falls back to its package defaults.
type Config struct {
	Processor processor.Config `json:"processor" yaml:"processor" mapstructure:"processor"`
	Queue     memory.Config    `json:"queue" yaml:"queue" mapstructure:"queue"`
	Allocator allocator.Config `json:"allocator" yaml:"allocator" mapstructure:"allocator"`
	Store     StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Storage   StorageConfig    `json:"storage" yaml:"storage" mapstructure:"storage"`
	Tracing   TracingConfig    `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Log       LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the run store
type StoreConfig struct {
	// Driver is one of memory, fs, postgres
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`
	// URL is the state location of the fs driver
	URL string `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	// DSN is the connection string of the postgres driver
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// StorageConfig locates resources
type StorageConfig struct {
	BaseURL string `json:"baseURL" yaml:"baseURL" mapstructure:"baseURL"`
}

// TracingConfig configures the stdout span exporter
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName,omitempty" yaml:"serviceName,omitempty" mapstructure:"serviceName"`
	File        string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a Config populated with the package defaults. Callers may modify the
// returned struct before passing it to WithConfig.
func DefaultConfig() *Config {
	return &Config{
		Processor: processor.DefaultConfig(),
		Queue:     memory.DefaultConfig(),
		Allocator: allocator.DefaultConfig(),
		Store:     StoreConfig{Driver: StoreMemory},
		Storage:   StorageConfig{BaseURL: "mem://localhost/graphrun"},
		Tracing:   TracingConfig{ServiceName: "graphrun"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var issues []error
	if c.Processor.WorkerCount <= 0 {
		issues = append(issues, fmt.Errorf("processor.workerCount must be > 0"))
	}
	if c.Processor.MaxTaskRetries < 0 {
		issues = append(issues, fmt.Errorf("processor.maxTaskRetries must be >= 0"))
	}
	if c.Processor.RetryDelay < 0 {
		issues = append(issues, fmt.Errorf("processor.retryDelay must be >= 0"))
	}
	if c.Allocator.PollingInterval < 0 {
		issues = append(issues, fmt.Errorf("allocator.pollingInterval must be >= 0"))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreFS:
		if c.Store.URL == "" {
			issues = append(issues, fmt.Errorf("store.url is required by the fs driver"))
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			issues = append(issues, fmt.Errorf("store.dsn is required by the postgres driver"))
		}
	default:
		issues = append(issues, fmt.Errorf("unsupported store.driver: %q", c.Store.Driver))
	}
	if c.Storage.BaseURL == "" {
		issues = append(issues, fmt.Errorf("storage.baseURL is required"))
	}
	return errors.Join(issues...)
}
