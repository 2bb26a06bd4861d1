package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/goals-api/internal/cfg"
)

const (
	appName        = "goals-api"
	appDescription = "Goals tracking API server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root with no subcommand
// is the same as "serve".
func newRootCmd() *cobra.Command {
	var conf cfg.App

	root := &cobra.Command{
		Use:   appName,
		Short: appDescription,
		Long: `Serves the goals API behind a fixed request pipeline.

Every flag can also be set from the environment as GOALS_<FLAG>, with
dashes replaced by underscores. Command line flags take precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, &conf)
		},
	}
	cfg.Register(root.PersistentFlags(), &conf)

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the API and admin listeners",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, &conf)
			},
		},
		newRoutesCmd(),
		newVersionCmd(),
	)
	return root
}
