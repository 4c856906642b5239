package model

import (
	"fmt"
	"time"
)

// NoPage marks a chunk whose source had no page information.
const NoPage = 0

// Chunk is a window of document text together with its embedding.
// Chunks are immutable once written and are removed only with their document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Page       int       `json:"page"`
	EndPage    int       `json:"end_page"`
	Filename   string    `json:"filename"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkID derives the stable id of the chunk at ordinal within documentID.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", documentID, ordinal)
}
