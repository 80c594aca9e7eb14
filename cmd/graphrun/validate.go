package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viant/graphrun"
)

func newValidateCmd(options *rootOptions) *cobra.Command {
	var workflowPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow against the job registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := options.load()
			if err != nil {
				return err
			}
			srv, err := graphrun.New(graphrun.WithConfig(cfg))
			if err != nil {
				return err
			}
			URL, err := location(workflowPath)
			if err != nil {
				return err
			}
			wf, err := srv.Runtime().LoadWorkflow(cmd.Context(), URL)
			if err != nil {
				return err
			}
			order, err := wf.TopologicalOrder()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %s is valid: %s\n", wf.Name, strings.Join(order, " -> "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&workflowPath, "workflow", "w", "", "workflow definition (YAML)")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}
