package monitoring

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrUnparsableContent marks content the matcher cannot scan (not valid
// UTF-8 after fetch). The executor records it as a parse failure.
var ErrUnparsableContent = errors.New("content is not valid text")

const excerptRadius = 80

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// MatchResult reports keyword occurrences within one page.
type MatchResult struct {
	Count     int
	FirstAt   int
	PageTitle string
	Excerpt   string
}

// KeywordMatcher scans page content for a keyword. Matching is
// case-insensitive and NFKC-normalized. A hit inside a larger alphanumeric
// token still counts: addresses and usernames routinely embed inside longer
// strings, so no word-boundary requirement is applied.
type KeywordMatcher struct {
	fold cases.Caser
}

func NewKeywordMatcher() *KeywordMatcher {
	return &KeywordMatcher{fold: cases.Fold()}
}

func (km *KeywordMatcher) normalize(s string) string {
	return km.fold.String(norm.NFKC.String(s))
}

// Match counts non-overlapping occurrences of keyword in content and
// extracts a title and a context excerpt around the first hit.
func (km *KeywordMatcher) Match(content []byte, keyword string) (*MatchResult, error) {
	if !utf8.Valid(content) {
		return nil, ErrUnparsableContent
	}

	text := km.normalize(string(content))
	needle := km.normalize(keyword)
	if needle == "" {
		return &MatchResult{FirstAt: -1}, nil
	}

	res := &MatchResult{FirstAt: -1, PageTitle: extractTitle(content)}

	for at := 0; ; {
		i := strings.Index(text[at:], needle)
		if i < 0 {
			break
		}
		hit := at + i
		if res.Count == 0 {
			res.FirstAt = hit
			res.Excerpt = excerptAround(text, hit, len(needle))
		}
		res.Count++
		at = hit + len(needle)
	}

	return res, nil
}

func extractTitle(content []byte) string {
	m := titleRe.FindSubmatch(content)
	if m == nil {
		return ""
	}
	title := strings.Join(strings.Fields(string(m[1])), " ")
	if len(title) > 255 {
		title = title[:255]
	}
	return title
}

// excerptAround returns the text surrounding a match, trimmed to rune
// boundaries.
func excerptAround(text string, at, matchLen int) string {
	start := at - excerptRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := at + matchLen + excerptRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}
