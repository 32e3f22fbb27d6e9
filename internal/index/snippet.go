package index

import (
	"strings"
)

// snippetWidth is the approximate snippet size in characters.
const snippetWidth = 100

const ellipsis = "…"

// buildMatch computes the representative match for a field's text: the
// first case-insensitive occurrence of the raw query, with 1-based
// line/column and a centered snippet. When the query matched only via
// tokens and has no literal occurrence, position fields stay zero and
// the snippet is a head truncation.
func buildMatch(field Field, text, rawQuery string) Match {
	needle := strings.TrimSpace(rawQuery)

	offset := -1
	if needle != "" {
		offset = strings.Index(strings.ToLower(text), strings.ToLower(needle))
	}

	if offset < 0 {
		return Match{
			Field:       field,
			Snippet:     headSnippet(text),
			MatchLength: len([]rune(needle)),
		}
	}

	line, column := position(text, offset)
	return Match{
		Field:       field,
		Snippet:     centeredSnippet(text, offset, len(needle)),
		LineNumber:  line,
		Column:      column,
		MatchLength: len([]rune(needle)),
	}
}

// position converts a byte offset into a 1-based line and column.
// The line is one plus the number of newlines before the offset; the
// column is one plus the number of characters since the last newline.
func position(text string, offset int) (line, column int) {
	prefix := text[:offset]
	line = strings.Count(prefix, "\n") + 1

	lastNewline := strings.LastIndexByte(prefix, '\n')
	column = len([]rune(prefix[lastNewline+1:])) + 1
	return line, column
}

// centeredSnippet returns ~snippetWidth characters centered on the
// occurrence, with ellipses marking truncation on either side.
func centeredSnippet(text string, offset, matchLen int) string {
	runes := []rune(text)
	center := len([]rune(text[:offset])) + len([]rune(text[offset:offset+matchLen]))/2

	start := center - snippetWidth/2
	if start < 0 {
		start = 0
	}
	end := start + snippetWidth
	if end > len(runes) {
		end = len(runes)
		if start = end - snippetWidth; start < 0 {
			start = 0
		}
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// headSnippet returns the first snippetWidth characters of text.
func headSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetWidth {
		return text
	}
	return string(runes[:snippetWidth]) + ellipsis
}
