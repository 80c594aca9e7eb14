package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/viant/afs/url"
	"github.com/viant/graphrun"
	"github.com/viant/graphrun/internal/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	options := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "graphrun",
		Short:         "Run DAG workflows of jobs over file resources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&options.configFile, "config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&options.logLevel, "log-level", "", "overrides log.level")
	cmd.AddCommand(newRunCmd(options), newValidateCmd(options), newJobsCmd(options))
	return cmd
}

func (o *rootOptions) load() (*graphrun.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// location turns a local path into an absolute one; URLs are returned unchanged.
func location(path string) (string, error) {
	if !url.IsRelative(path) {
		return path, nil
	}
	return filepath.Abs(path)
}
