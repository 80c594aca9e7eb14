package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/viant/graphrun"
	"github.com/viant/graphrun/model/job"
)

func newJobsCmd(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs",
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
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tINTERACTIVE\tINPUTS\tOUTPUTS\tDESCRIPTION")
			for _, name := range srv.Registry().Names() {
				spec, err := srv.Registry().Spec(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n", spec.Name, spec.Interactive, ports(spec.Inputs), ports(spec.Outputs), spec.Description)
			}
			return w.Flush()
		},
	}
}

func ports(items []*job.PortType) string {
	var ret []string
	for _, item := range items {
		ret = append(ret, item.Name+"("+strings.Join(item.ResourceTypes, "|")+")")
	}
	if len(ret) == 0 {
		return "-"
	}
	return strings.Join(ret, ", ")
}
