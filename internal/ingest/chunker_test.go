package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/internal/domain"
)

func TestSplitText_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr error
	}{
		{name: "zero size", size: 0, overlap: 0, wantErr: domain.ErrInvalidChunkSize},
		{name: "negative size", size: -1, overlap: 0, wantErr: domain.ErrInvalidChunkSize},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: domain.ErrInvalidChunkOverlap},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: domain.ErrInvalidChunkOverlap},
		{name: "overlap exceeds size", size: 100, overlap: 150, wantErr: domain.ErrInvalidChunkOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := splitText("some text", tt.size, tt.overlap)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSplitText_Empty(t *testing.T) {
	chunks, err := splitText("   \n\t  ", 100, 10)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	chunks, err := splitText("short document", 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short document", chunks[0])
}

func TestSplitText_OverlappingChunks(t *testing.T) {
	text := strings.Repeat("a", 500) + strings.Repeat("b", 500) +
		strings.Repeat("c", 500) + strings.Repeat("d", 500)
	require.Len(t, text, 2000)

	chunks, err := splitText(text, 512, 64)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	// Consecutive chunks share exactly the overlap.
	runes := []rune(text)
	for i := 1; i < len(chunks); i++ {
		prefix := []rune(chunks[i])[:64]
		assert.Equal(t, string(runes[i*512-64:i*512]), string(prefix))
	}

	// Every rune of the input is covered in order.
	assert.True(t, strings.HasPrefix(chunks[0], "aaa"))
	assert.True(t, strings.HasSuffix(chunks[3], "ddd"))
}

func TestSplitText_Deterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox ", 200)

	first, err := splitText(text, 256, 32)
	require.NoError(t, err)
	second, err := splitText(text, 256, 32)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitText_MultibyteRunes(t *testing.T) {
	text := strings.Repeat("日本語のテキスト ", 100)
	chunks, err := splitText(text, 64, 8)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 64+8)
	}
}

func TestClassifySubtype(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    domain.ChunkSubtype
	}{
		{
			name:    "prose",
			content: "Employees accrue vacation at two days per month.",
			want:    domain.ChunkSubtypeText,
		},
		{
			name:    "markdown table",
			content: "| quarter | revenue |\n| --- | --- |\n| Q1 | 10M |\n| Q2 | 12M |",
			want:    domain.ChunkSubtypeTable,
		},
		{
			name:    "mostly prose with one table row",
			content: "Revenue summary follows.\nSee below.\nMore detail in appendix.\n| Q1 | 10M |",
			want:    domain.ChunkSubtypeText,
		},
		{
			name:    "empty",
			content: "",
			want:    domain.ChunkSubtypeText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySubtype(tt.content))
		})
	}
}
