package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/indexer"
)

var (
	scanQuiet  bool
	scanStrict bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index every file in a knowledge base's documents folder",
	Long: `Scans <data_dir>/<base>/documents and indexes each file in name order.
Unchanged files are skipped. A file that fails is reported and the scan moves
on to the next one.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "suppress progress output")
	scanCmd.Flags().BoolVar(&scanStrict, "strict", false, "exit with an error when any file fails")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	base, err := resolveBase(a)
	if err != nil {
		return err
	}

	var progress indexer.ProgressFunc
	if !scanQuiet {
		progress = func(e indexer.Event) {
			if e.Known {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", percent(e.Fraction), e.Message)
			}
		}
	}

	result, err := a.Indexer.ScanFolder(cmd.Context(), base, progress)
	if result != nil {
		printScanResult(cmd, a.Indexer.DocumentsDir(base), result)
	}
	if err != nil {
		return err
	}

	if scanStrict && len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d files failed", len(result.Failures), len(result.Documents)+len(result.Failures))
	}
	return nil
}

func printScanResult(cmd *cobra.Command, dir string, result *indexer.ScanResult) {
	cmd.Printf("Scanned %s\n", dir)
	cmd.Printf("  Indexed: %d\n", len(result.Documents)-result.Skipped)
	cmd.Printf("  Skipped: %d\n", result.Skipped)
	cmd.Printf("  Failed:  %d\n", len(result.Failures))
	cmd.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Failures) > 0 {
		cmd.Println()
		cmd.Println("Errors:")
		for _, f := range result.Failures {
			cmd.Printf("  - %s: %v\n", filepath.Base(f.Path), f.Err)
		}
	}
}
