package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceSplitter_AbbreviationDoesNotSplit(t *testing.T) {
	chunks, err := SentenceSplitter{}.Process("Dr. Smith went home. He slept.", mkMeta(), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Dr. Smith went home.", chunks[0].Text)
	assert.Equal(t, "He slept.", chunks[1].Text)
}

func TestSentenceSplitter_DecimalDoesNotSplit(t *testing.T) {
	chunks, err := SentenceSplitter{}.Process("The value is 3.14 exactly. Next sentence.", mkMeta(), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "The value is 3.14 exactly.", chunks[0].Text)
}

func TestSentenceSplitter_QuestionAndExclamation(t *testing.T) {
	chunks, err := SentenceSplitter{}.Process("Really? Yes! Okay then.", mkMeta(), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
}
