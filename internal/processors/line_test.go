package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/domain"
)

func mkMeta() domain.Metadata {
	return domain.Metadata{DocumentID: "doc1", SectionID: "sec1", SectionLevel: 1}
}

func TestLineSplitter_EmptyTextProducesNoChunks(t *testing.T) {
	chunks, err := LineSplitter{}.Process("", mkMeta(), nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestLineSplitter_SkipsBlankLinesAndNumbersSequentially(t *testing.T) {
	chunks, err := LineSplitter{}.Process("first\n\n  second  \nthird", mkMeta(), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "first", chunks[0].Text)
	assert.Equal(t, "second", chunks[1].Text)
	assert.Equal(t, "third", chunks[2].Text)
	assert.Equal(t, 1, *chunks[0].Meta.LineNum)
	assert.Equal(t, 2, *chunks[1].Meta.LineNum)
	assert.Equal(t, 3, *chunks[2].Meta.LineNum)
	assert.Equal(t, domain.ChunkTypeLine, chunks[0].Meta.ChunkType)
}
