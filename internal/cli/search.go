package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/searcher"
)

var (
	searchLimit    int
	searchMode     string
	searchDocument string
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search an indexed knowledge base",
	Long: `Searches a knowledge base. The default hybrid mode fuses keyword (BM25)
and semantic (vector) rankings with reciprocal rank fusion; --mode vector or
--mode keyword runs one side only.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", string(searcher.SearchModeHybrid), "search mode: hybrid, vector or keyword")
	searchCmd.Flags().StringVar(&searchDocument, "doc", "", "restrict results to one document path")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum vector similarity (0-1)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	mode, err := searcher.ParseMode(searchMode)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	base, err := resolveBase(a)
	if err != nil {
		return err
	}

	resp, err := a.Searcher.Search(cmd.Context(), searcher.SearchRequest{
		Base:         base,
		Query:        args[0],
		Limit:        searchLimit,
		Mode:         mode,
		DocumentPath: searchDocument,
		MinScore:     searchMinScore,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, resp)
	}
	outputSearchTable(cmd, resp)
	return nil
}

func outputSearchJSON(cmd *cobra.Command, resp *searcher.SearchResponse) error {
	data, err := json.MarshalIndent(resp.Results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Printf("Results (%s, %d vector, %d keyword):\n\n", resp.SearchMode, resp.VectorResults, resp.TextResults)
	for _, r := range resp.Results {
		title := r.ID
		page := 0
		if r.Document != nil {
			title = r.Document.Filename
			page = r.Document.PageNum
		}
		cmd.Printf("  [%d] %s p.%d (%.2f)\n", r.Rank, title, page, r.RelevanceScore)
		if r.Content != "" {
			cmd.Printf("      %s\n", truncate(r.Content, 160))
		}
		cmd.Println()
	}
}
