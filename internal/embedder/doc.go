// Package embedder turns chunk text into vectors.
//
// Three providers implement Embedder:
//
//   - local: offline feature hashing of words and character trigrams into a
//     384-dimensional unit vector. Deterministic and dependency free.
//   - openai: the OpenAI embeddings API through go-openai. BaseURL targets any
//     OpenAI-compatible server (Ollama, vLLM, LM Studio).
//   - jina: the Jina AI REST API.
//
// Remote providers check an LRU cache keyed by provider, model and text
// hash, pace requests with a token bucket and make a single attempt unless
// MaxAttempts asks for more. Responses are verified for count and dimension
// before they are returned.
//
// # Usage
//
//	reg := embedder.NewRegistry()
//	defer reg.Close()
//
//	emb, err := reg.Get(cfg.Embedding)
//	if err != nil {
//	    return err
//	}
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
//	vectors := resp.Vectors()
//
// GenerateBatch returns one embedding per text in input order and accepts at
// most MaxBatchSize texts; callers split larger inputs.
package embedder
