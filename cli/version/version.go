package cliversion

import (
	"github.com/spf13/cobra"
)

// set via ldflags at build time
var (
	Version   = "dev"
	GitCommit = ""
)

func GetVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "prints the relayer version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("version: %s\n", Version)

			if GitCommit != "" {
				cmd.Printf("commit: %s\n", GitCommit)
			}
		},
	}
}
