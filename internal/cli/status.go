package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/app"
	"github.com/dshills/docindex-mcp/pkg/types"
)

var (
	statusAll  bool
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexing status of a knowledge base",
	Long: `Shows document, page and vector counts for a knowledge base together with
the embedding provider and database health. --all reports every base in the
data directory.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "report every knowledge base")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	var bases []string
	if statusAll {
		if bases, err = a.ListBases(); err != nil {
			return err
		}
		if len(bases) == 0 {
			cmd.Printf("No knowledge bases in %s\n", a.Config.DataDir)
			return nil
		}
	} else {
		base, err := resolveBase(a)
		if err != nil {
			return err
		}
		bases = []string{base}
	}

	statuses := make([]*app.Status, 0, len(bases))
	for _, base := range bases {
		status, err := a.Status(cmd.Context(), base)
		if errors.Is(err, types.ErrNotFound) {
			cmd.Printf("Knowledge base %q not found in %s\n", base, a.Config.DataDir)
			continue
		}
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}

	if statusJSON {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for i, s := range statuses {
		if i > 0 {
			cmd.Println()
		}
		printStatus(cmd, s)
	}
	return nil
}

func printStatus(cmd *cobra.Command, s *app.Status) {
	lastIndexed := "never"
	if !s.LastIndexedAt.IsZero() {
		lastIndexed = s.LastIndexedAt.Local().Format(time.DateTime)
	}

	cmd.Printf("Knowledge base: %s\n", s.BaseName)
	cmd.Printf("  Documents folder: %s (%d files)\n", s.DocumentsDir, s.FilesInFolder)
	cmd.Printf("  Documents: %d indexed, %d pending\n", s.DocumentsCount-s.PendingCount, s.PendingCount)
	cmd.Printf("  Pages:     %d (%d chars)\n", s.PagesCount, s.TotalChars)
	cmd.Printf("  Vectors:   %d (%s)\n", s.VectorCount, s.VectorBackend)
	cmd.Printf("  Embedding: %s/%s, %d dims\n", s.EmbeddingProvider, s.EmbeddingModel, s.Dimension)
	cmd.Printf("  Database:  %.2f MB, schema %s, healthy=%t\n", s.DatabaseSizeMB, s.SchemaVersion, s.DatabaseHealthy)
	cmd.Printf("  Last indexed: %s\n", lastIndexed)
}
