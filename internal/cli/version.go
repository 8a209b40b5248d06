package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/internal/storage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("%s version %s\n", app.Name, app.Version)
		cmd.Printf("Build Time: %s\n", app.BuildTime)
		cmd.Printf("Build Mode: %s\n", storage.BuildMode)
		cmd.Printf("SQLite Driver: %s\n", storage.DriverName)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
