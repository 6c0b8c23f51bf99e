package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is set via -ldflags "-X .../internal/app.buildVersion=..."
// at release time; it stays "dev" for local builds.
var buildVersion = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dcrpm build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("dcrpm", buildVersion)
		return nil
	},
}
