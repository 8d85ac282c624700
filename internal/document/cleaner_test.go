package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCleanerRejectsInvalidPattern(t *testing.T) {
	_, err := NewCleaner([]string{`valid`, `([unclosed`}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclosed")
}

func TestCleanRemovesBoilerplate(t *testing.T) {
	c, err := NewCleaner([]string{
		`copyright\s*(©|\(c\))?\s*\d{4}[^\n]*`,
		`page\s+\d+(\s+of\s+\d+)?`,
	}, 10)
	require.NoError(t, err)

	in := "Useful content here.\nCopyright © 2024 Example Corp\nPage 3 of 12\nMore useful content."
	got := c.Clean(in)

	assert.NotContains(t, got, "Copyright")
	assert.NotContains(t, got, "Page 3")
	assert.Contains(t, got, "Useful content here.")
	assert.Contains(t, got, "More useful content.")
}

func TestCleanCaseInsensitive(t *testing.T) {
	c, err := NewCleaner([]string{`all rights reserved[^\n]*`}, 10)
	require.NoError(t, err)

	got := c.Clean("text\nALL RIGHTS RESERVED worldwide\nmore text")
	assert.NotContains(t, got, "RESERVED")
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	c, err := NewCleaner(nil, 10)
	require.NoError(t, err)

	got := c.Clean("word1    word2\t\tword3\n\n\n\n\nword4")
	assert.Equal(t, "word1 word2 word3\n\nword4", got)
}

func TestKeepDropsNearEmptyDocuments(t *testing.T) {
	c, err := NewCleaner(nil, 10)
	require.NoError(t, err)

	short := New("only four words here", "a.txt", "text")
	long := New("this document has more than ten words so it clears the minimum easily", "b.txt", "text")

	assert.False(t, c.Keep(short))
	assert.True(t, c.Keep(long))
}
