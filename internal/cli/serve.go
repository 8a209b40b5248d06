package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/mcp"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Starts the Model Context Protocol server. JSON-RPC messages are read from
stdin and written to stdout; logs go to stderr.

With --watch the default base's documents folder is also watched and
re-indexed while the server runs.

Client configuration:
  {
    "mcpServers": {
      "docindex": {
        "command": "/usr/local/bin/docindex",
        "args": ["serve", "--base", "papers"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "watch the base's documents folder while serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	if baseName != "" {
		base, err := resolveBase(a)
		if err != nil {
			return err
		}
		a.Config.DefaultBase = base
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if serveWatch {
		// stdout carries the protocol, so watch output goes to stderr
		w := newWatcher(a, a.Config.DefaultBase, DefaultDebounce, cmd.ErrOrStderr())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := w.run(ctx); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	return mcp.NewServer(a).Serve(ctx)
}
