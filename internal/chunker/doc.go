// Package chunker splits page text into overlapping, sentence-aligned chunks
// sized by an approximate token budget.
//
// Sentences are runs of text ending in '.', '!' or '?' (or the end of the
// text). Token counts are estimated as ceil(words * 1.3). Sentences are
// accumulated until the next one would push the chunk over the target size;
// the closed chunk's trailing sentences are then carried into the next chunk
// until they reach the overlap size. Sentences are never split, so a
// sentence longer than the target becomes a chunk of its own.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithChunkSize(512), chunker.WithOverlap(50))
//	if err := c.Validate(); err != nil {
//	    return err
//	}
//	for _, ch := range c.Chunk(pageText) {
//	    fmt.Printf("#%d [%d:%d] ~%d tokens\n", ch.Index, ch.StartChar, ch.EndChar, ch.TokenCount)
//	}
//
// Output depends only on the text and the parameters; chunk ids are derived
// from chunk positions.
package chunker
