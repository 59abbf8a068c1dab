package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, IDFromContent("hallo welt"), IDFromContent("hallo welt"))
	})

	t.Run("different content different id", func(t *testing.T) {
		assert.NotEqual(t, IDFromContent("hallo welt"), IDFromContent("hallo Welt"))
	})

	t.Run("empty content has an id", func(t *testing.T) {
		assert.NotZero(t, IDFromContent(""))
	})
}

func TestContentHash(t *testing.T) {
	hash := ContentHash([]byte("hallo welt"))
	assert.True(t, IsContentHash(hash))
	assert.Equal(t, hash, ContentHash([]byte("hallo welt")))
	assert.NotEqual(t, hash, ContentHash([]byte("hallo welt ")))

	// Known SHA-256 of the empty input.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentHash(nil))
}

func TestVisibilityRoundTrip(t *testing.T) {
	for _, v := range []Visibility{VisibilityRestricted, VisibilityAll} {
		parsed, err := ParseVisibility(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}

	_, err := ParseVisibility("everyone")
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestDocumentStatusString(t *testing.T) {
	tests := []struct {
		status DocumentStatus
		want   string
	}{
		{StatusPending, "pending"},
		{StatusIndexed, "indexed"},
		{StatusEmbedded, "embedded"},
		{StatusEmbeddingFailed, "embedding_failed"},
		{StatusReprocessing, "reprocessing"},
		{DocumentStatus(99), "status(99)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}
