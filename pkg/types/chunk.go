package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// chunkNamespace scopes UUIDv5 chunk ids to this application.
var chunkNamespace = uuid.MustParse("6f1d7c1e-5b0a-4c59-9d53-1b8f3b2f9a41")

// Chunk is the payload stored with every vector. Field names follow the
// vector store payload keys.
type Chunk struct {
	ID             string `json:"id"`
	Key            string `json:"chunk_key"`
	DocumentID     int64  `json:"document_id"`
	DocumentPath   string `json:"document_path"`
	Filename       string `json:"filename"`
	PageNum        int    `json:"page_num"`
	ChunkIndex     int    `json:"chunk_index"`
	PageChunkIndex int    `json:"page_chunk_index"`
	StartChar      int    `json:"start_char"`
	EndChar        int    `json:"end_char"`
	TokenCount     int    `json:"token_count"`
	Text           string `json:"text"`
}

// ChunkKey returns the composite key "<document>:<page>:<sequence>".
func ChunkKey(documentID int64, pageNum, seq int) string {
	return fmt.Sprintf("%d:%d:%d", documentID, pageNum, seq)
}

// ChunkID derives the point id for a chunk. The result depends only on the
// three arguments.
func ChunkID(documentID int64, pageNum, seq int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(ChunkKey(documentID, pageNum, seq))).String()
}

// Validate checks that the chunk can be written to a vector store
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk id cannot be empty")
	}
	if c.Text == "" {
		return ErrEmptyContent
	}
	if c.DocumentPath == "" {
		return ErrMissingDocumentPath
	}
	if c.PageNum < 1 {
		return errors.New("page number must be >= 1")
	}
	if c.StartChar < 0 || c.StartChar > c.EndChar {
		return errors.New("start char must be between 0 and end char")
	}
	return nil
}
