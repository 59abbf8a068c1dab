package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/docsearch/core"
)

// Key prefixes for different data types
const (
	documentRecordPrefix = "docrec"
	documentHashPrefix   = "dochsh"
	documentIDSeq        = "docrecseq"
	chunkRecordPrefix    = "churec"
	chunkDocPrefix       = "chudoc"
	chunkSeq             = "churecseq"
	embeddingPrefix      = "embrec"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentRecordPrefix, id))
}

// makeDocumentHashKey generates an index key for content hash lookup.
// Format: prefix:hash
func makeDocumentHashKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s", documentHashPrefix, hash))
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkRecordPrefix, id))
}

// makeChunkDocKey generates a composite key for the per-document chunk index.
// Format: prefix:documentID:index
func makeChunkDocKey(documentID core.ID, index int) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for documentID + 8 bytes for index
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(index))
	return buf
}

// makePartialChunkDocKey generates a partial key for per-document chunk scans.
// Format: prefix:documentID
func makePartialChunkDocKey(documentID core.ID) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for documentID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}

// makeEmbeddingKey generates a composite key for an embedding record.
// Format: prefix:documentID:chunkID:model
//
// The document ID comes first so all embeddings of a document form a
// contiguous key range for cascade deletes.
func makeEmbeddingKey(documentID, chunkID core.ID, model string) []byte {
	prefix := embeddingPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 + len(model)
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkID))
	offset += 8
	copy(buf[offset:], []byte(model))
	return buf
}

// makePartialEmbeddingKey generates a partial key for per-document embedding scans.
// Format: prefix:documentID
func makePartialEmbeddingKey(documentID core.ID) []byte {
	prefix := embeddingPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}
