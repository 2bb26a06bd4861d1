package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/goals-api/internal/features"
	v "github.com/keithlinneman/goals-api/internal/version"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the public mount table in dispatch order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printRoutes(cmd.OutOrStdout())
		},
	}
}

func printRoutes(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tGROUP\tRATE LIMITED")
	for _, m := range features.Table(nil) {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", m.Prefix, m.Name, m.RateLimited)
	}
	return tw.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout(), v.Get())
		},
	}
}

func printVersion(out io.Writer, vi v.Info) {
	fmt.Fprintln(out, appName, vi.String())
}
