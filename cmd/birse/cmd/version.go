package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set via -ldflags "-X github.com/biggo-labs/birse-go/cmd/birse/cmd.version=...".
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version)
		},
	}
}
