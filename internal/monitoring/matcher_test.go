package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherCaseInsensitive(t *testing.T) {
	km := NewKeywordMatcher()
	res, err := km.Match([]byte("Example text mentions EXAMPLE and eXaMpLe."), "example")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 0, res.FirstAt)
}

func TestMatcherNoMatch(t *testing.T) {
	km := NewKeywordMatcher()
	res, err := km.Match([]byte("nothing relevant here"), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, -1, res.FirstAt)
	assert.Empty(t, res.Excerpt)
}

func TestMatcherNonOverlapping(t *testing.T) {
	km := NewKeywordMatcher()
	res, err := km.Match([]byte("aaaa"), "aa")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
}

func TestMatcherSubstringOfLargerToken(t *testing.T) {
	km := NewKeywordMatcher()
	res, err := km.Match([]byte("user wallet 1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2 posted"), "wetqtfn5au")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestMatcherUnicodeNormalization(t *testing.T) {
	km := NewKeywordMatcher()
	// U+FB01 LATIN SMALL LIGATURE FI normalizes to "fi" under NFKC.
	res, err := km.Match([]byte("the ﬁle was leaked"), "file")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestMatcherExtractsTitleAndExcerpt(t *testing.T) {
	km := NewKeywordMatcher()
	page := []byte("<html><head><title>  Breach\n  Report </title></head>" +
		"<body>some long preamble before the secret keyword appears in context</body></html>")
	res, err := km.Match(page, "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "Breach Report", res.PageTitle)
	assert.Contains(t, res.Excerpt, "secret")
}

func TestMatcherInvalidUTF8(t *testing.T) {
	km := NewKeywordMatcher()
	_, err := km.Match([]byte{0xff, 0xfe, 0x00, 0x42}, "keyword")
	assert.ErrorIs(t, err, ErrUnparsableContent)
}

func TestMatcherEmptyKeyword(t *testing.T) {
	km := NewKeywordMatcher()
	res, err := km.Match([]byte("anything"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
}
