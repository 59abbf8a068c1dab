package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentHash returns the lowercase 64-hex SHA-256 digest of raw document bytes.
// Identical bytes always produce identical hashes, which is how duplicate
// uploads are detected before any chunking or embedding work is done.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Visibility controls who may read a document's chunks.
type Visibility int

const (
	// VisibilityRestricted limits access to the owning department and any
	// explicitly allowed departments.
	VisibilityRestricted Visibility = iota + 1
	// VisibilityAll makes the document readable by every requester.
	VisibilityAll
)

// String returns the wire-level name of the visibility value.
func (v Visibility) String() string {
	switch v {
	case VisibilityRestricted:
		return "restricted"
	case VisibilityAll:
		return "all"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// ParseVisibility converts a wire-level name into a Visibility value.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "restricted":
		return VisibilityRestricted, nil
	case "all":
		return VisibilityAll, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidVisibility, s)
	}
}

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus int

const (
	// StatusPending means the document is hashed and persisted but has no chunks yet.
	StatusPending DocumentStatus = iota + 1
	// StatusIndexed means chunks are persisted and the document is lexically searchable.
	StatusIndexed
	// StatusEmbedded means chunk vectors are present for the configured model.
	StatusEmbedded
	// StatusEmbeddingFailed means every embedding in the last batch failed;
	// the document remains lexically searchable and can be repaired via reprocess.
	StatusEmbeddingFailed
	// StatusReprocessing means chunks are being retired and regenerated.
	StatusReprocessing
)

// String returns a human-readable status name.
func (s DocumentStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusIndexed:
		return "indexed"
	case StatusEmbedded:
		return "embedded"
	case StatusEmbeddingFailed:
		return "embedding_failed"
	case StatusReprocessing:
		return "reprocessing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Document is an ingested organizational document. Immutable once ingested;
// content changes require retiring and regenerating all of its chunks.
type Document struct {
	Id                 ID
	ContentHash        string // 64-hex SHA-256 of the raw bytes, unique per live document
	Title              string
	Department         string // owning department
	Visibility         Visibility
	AllowedDepartments []string // extra departments granted read access when restricted
	RawText            string
	Language           string
	Status             DocumentStatus
	InsertedAt         time.Time
	UpdatedAt          time.Time
}

// Chunk is a bounded-size, contiguous slice of a document's text; the unit
// of embedding and retrieval. Chunks are created in one batch at ingestion
// and never mutated afterward.
type Chunk struct {
	Id         ID
	DocumentId ID
	Index      int // 0-based, contiguous within the document
	Text       string
	WordCount  int
	Seq        uint64 // global insertion sequence, used for deterministic tie-breaking
	InsertedAt time.Time
}

// Embedding is a fixed-dimension vector for one chunk under one model.
// At most one embedding exists per (chunk, model); embeddings are freely
// regenerable without affecting chunk content.
type Embedding struct {
	ChunkId    ID
	DocumentId ID
	Model      string
	Seq        uint64 // copied from the chunk for stable result ordering
	Vector     []float32
}

// Requester is the caller-supplied identity a retrieval request runs as.
type Requester struct {
	Department  string
	IsSuperuser bool
}

// ChunkMatch is a ranked (chunk, score) pair produced by one search path.
type ChunkMatch struct {
	ChunkId    ID
	DocumentId ID
	Score      float64
	Seq        uint64
}

// RetrievedChunk is one entry of the final ordered retrieval result.
type RetrievedChunk struct {
	DocumentId    ID
	ChunkId       ID
	Snippet       string
	Score         float64
	DocumentTitle string
	Source        string // which search path produced the entry: semantic, lexical or both
}
