// Package cli implements the docindex command line: indexing, scanning,
// searching and watching knowledge bases, and serving them over MCP.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/logger"
)

var (
	cfgFile  string
	baseName string
	dataDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "docindex",
	Short: "Incremental document indexing and search",
	Long: `docindex keeps knowledge bases of PDF, text and markdown files indexed for
keyword and semantic search. Each base lives under <data_dir>/<base> with its
documents folder, metadata database and vector store.

Unchanged files are detected by content hash and never re-embedded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&baseName, "base", "b", "", "knowledge base name (default from config)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory holding the knowledge bases")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// Execute runs the command line with ctx as the root context. Command
// output goes to stdout and logs to stderr.
func Execute(ctx context.Context) error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig resolves the configuration and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return cfg, nil
}

// openApp builds the service for one command run. The caller closes it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg)
}

// closeApp releases a, logging rather than masking the command's own error
func closeApp(cmd *cobra.Command, a *app.App) {
	if err := a.Close(context.WithoutCancel(cmd.Context())); err != nil {
		logger.Warn("failed to close service", "error", err)
	}
}

// resolveBase applies the --base flag
func resolveBase(a *app.App) (string, error) {
	return a.ResolveBase(baseName)
}

// percent renders a progress fraction for terminal output
func percent(fraction float64) string {
	return fmt.Sprintf("%3.0f%%", fraction*100)
}

// truncate shortens s to n runes on one line
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
