package loaders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTXTLoader_OneBlockPerNonEmptyLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n\nsecond\nthird"), 0o644))

	doc, err := (TXTLoader{}).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	assert.Len(t, doc.Pages[0].Blocks, 3)
	assert.Equal(t, "first", doc.Pages[0].Blocks[0].Spans[0].Text)
	assert.Equal(t, "third", doc.Pages[0].Blocks[2].Spans[0].Text)
}
