package domain

import "time"

// DocumentChunk is a bounded slice of an ingested document, independently
// embedded and retrievable. chunk_index is contiguous per document starting
// at 0. Chunks are immutable once created; re-ingestion mints a new document
// ID instead of mutating chunks in place.
type DocumentChunk struct {
	ID         string
	TenantID   string
	DocumentID string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	Embedding  []float32
	CreatedAt  time.Time
}

// IngestResult reports what an ingestion run stored. FailedChunks lists the
// indices whose embedding call errored; already-stored chunks are kept.
type IngestResult struct {
	DocumentID   string   `json:"document_id"`
	ChunkIDs     []string `json:"chunk_ids"`
	FailedChunks []int    `json:"failed_chunks,omitempty"`
	IsChunked    bool     `json:"is_chunked"`
}

// ScoredChunk pairs a retrieved chunk with its cosine similarity to the
// query embedding.
type ScoredChunk struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float32       `json:"similarity"`
}
