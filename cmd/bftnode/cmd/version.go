package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set with -ldflags "-X github.com/ledgerbft/node/cmd/bftnode/cmd.semver=..."
var (
	semver = "undefined"
	commit = "undefined"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the node",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bftnode %s (commit %s)\n", semver, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
