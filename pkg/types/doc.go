// Package types provides shared type definitions for the docindex MCP server.
//
// This package defines the domain types that cross component boundaries:
// the chunk payload stored next to every vector, search results, and the
// sentinel errors used to classify pipeline failures.
//
// # Chunks
//
// A Chunk is the retrieval unit derived from one page of a document. It is
// not persisted relationally; it travels as the payload of a vector store
// point:
//
//	chunk := types.Chunk{
//	    ID:         types.ChunkID(docID, 3, 17),
//	    Key:        types.ChunkKey(docID, 3, 17),
//	    DocumentID: docID,
//	    PageNum:    3,
//	    ChunkIndex: 17,
//	    Text:       "Sentence one. Sentence two.",
//	}
//
// Chunk ids are UUIDv5 values derived from (document id, page number,
// sequence) so the same triple always yields the same id.
//
// # Errors
//
// Failures are classified with errors.Is against the sentinels in errors.go:
//
//	if errors.Is(err, types.ErrUnsupportedType) {
//	    // validation failure, do not retry
//	}
package types
