// Package searcher answers queries against indexed knowledge bases.
//
// Three search modes are available:
//   - Hybrid: vector and BM25 page hits fused per page (default)
//   - Vector: cosine similarity over chunk embeddings
//   - Keyword: SQLite FTS5 BM25 ranking over page text
//
// # Basic Usage
//
//	s := searcher.NewSearcher(pool, vectors, emb, searcher.Options{DataDir: dataDir})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Base:  "research",
//	    Query: "attention heads",
//	    Limit: 5,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s p.%d (%.3f)\n", r.Rank, r.Document.Filename, r.Document.PageNum, r.RelevanceScore)
//	}
//
// # Reciprocal Rank Fusion
//
// Hybrid mode scores a page as the sum of 1/(k + rank) over the lists it
// appears in, with k defaulting to 60. Only the best chunk of a page counts
// toward the vector list. The fused result carries the chunk text when the
// page had a vector hit, otherwise a snippet of the page.
//
// # Caching
//
// With UseCache, responses are kept in an LRU with a fixed TTL. The indexer
// calls InvalidateBase after every document whose vectors changed, so a
// cached response never outlives the content it was computed from.
package searcher
