package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/indexer"
)

var (
	indexImport bool
	indexQuiet  bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Index individual files",
	Long: `Indexes one or more PDF, text or markdown files into a knowledge base.

Files whose content hash matches the last completed run are skipped. With
--import each file is first copied into the base's documents folder so later
scans keep it up to date.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexImport, "import", false, "copy files into the base's documents folder before indexing")
	indexCmd.Flags().BoolVarP(&indexQuiet, "quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
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
	if !indexQuiet {
		progress = func(e indexer.Event) {
			if e.Known {
				fmt.Fprintf(cmd.ErrOrStderr(), "  [%s] %s\n", percent(e.Fraction), e.Message)
			}
		}
	}

	var errs []error
	for _, path := range args {
		if indexImport {
			dst, err := a.ImportFile(base, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				cmd.PrintErrf("failed %s: %v\n", filepath.Base(path), err)
				continue
			}
			path = dst
		}

		start := time.Now()
		doc, err := a.Indexer.IndexFile(cmd.Context(), base, path, progress)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			cmd.PrintErrf("failed %s: %v\n", filepath.Base(path), err)
			continue
		}

		if doc.IndexedAt.Before(start) {
			cmd.Printf("unchanged %s\n", doc.Filename)
			continue
		}
		pages := 0
		if doc.TotalPages != nil {
			pages = *doc.TotalPages
		}
		cmd.Printf("indexed %s (%d pages, %s)\n", doc.Filename, pages, time.Since(start).Round(time.Millisecond))
	}

	return errors.Join(errs...)
}
