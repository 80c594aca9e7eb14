// Package config loads graphrun.Config from a YAML file and GRAPHRUN_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/viant/graphrun"
)

// EnvPrefix prefixes environment overrides, e.g. GRAPHRUN_STORE_DRIVER=fs.
const EnvPrefix = "GRAPHRUN"

// Load reads the configuration. An empty path loads defaults and environment overrides only.
func Load(path string) (*graphrun.Config, error) {
	v := viper.New()
	setDefaults(v, graphrun.DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	config := graphrun.DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, config *graphrun.Config) {
	v.SetDefault("processor.workerCount", config.Processor.WorkerCount)
	v.SetDefault("processor.maxTaskRetries", config.Processor.MaxTaskRetries)
	v.SetDefault("processor.retryDelay", config.Processor.RetryDelay)
	v.SetDefault("queue.maxRetries", config.Queue.MaxRetries)
	v.SetDefault("queue.retryDelay", config.Queue.RetryDelay)
	v.SetDefault("queue.deadLetter", config.Queue.DeadLetter)
	v.SetDefault("queue.queueBuffer", config.Queue.QueueBuffer)
	v.SetDefault("allocator.pollingInterval", config.Allocator.PollingInterval)
	v.SetDefault("store.driver", config.Store.Driver)
	v.SetDefault("store.url", config.Store.URL)
	v.SetDefault("store.dsn", config.Store.DSN)
	v.SetDefault("storage.baseURL", config.Storage.BaseURL)
	v.SetDefault("tracing.enabled", config.Tracing.Enabled)
	v.SetDefault("tracing.serviceName", config.Tracing.ServiceName)
	v.SetDefault("tracing.file", config.Tracing.File)
	v.SetDefault("log.level", config.Log.Level)
	v.SetDefault("log.format", config.Log.Format)
}
