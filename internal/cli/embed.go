package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/embedder"
)

var (
	embedJSON    bool
	embedPreview int
)

var embedCmd = &cobra.Command{
	Use:   "embed <text>...",
	Short: "Embed text with the configured provider",
	Long: `Generates embeddings for the given texts with the configured provider and
prints their dimension, norm and leading values. Use it to check provider
credentials and model settings before indexing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().BoolVar(&embedJSON, "json", false, "print the full vectors as JSON")
	embedCmd.Flags().IntVar(&embedPreview, "preview", 5, "number of leading values to print")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer func() { _ = emb.Close() }()

	start := time.Now()
	resp, err := emb.GenerateBatch(cmd.Context(), embedder.BatchEmbeddingRequest{Texts: args})
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if embedJSON {
		data, err := json.MarshalIndent(map[string]interface{}{
			"provider":  emb.Provider(),
			"model":     emb.Model(),
			"dimension": emb.Dimension(),
			"vectors":   resp.Vectors(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal vectors: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Provider: %s\n", emb.Provider())
	cmd.Printf("Model: %s\n", emb.Model())
	cmd.Printf("Dimension: %d\n", emb.Dimension())
	cmd.Printf("Duration: %s\n\n", time.Since(start).Round(time.Millisecond))

	for i, e := range resp.Embeddings {
		n := min(embedPreview, len(e.Vector))
		cmd.Printf("[%d] %q\n", i+1, truncate(args[i], 60))
		cmd.Printf("    dim=%d norm=%.4f head=%v\n", len(e.Vector), norm(e.Vector), e.Vector[:max(n, 0)])
	}
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
