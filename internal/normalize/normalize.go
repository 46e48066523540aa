// Package normalize cleans user-supplied text before it is stored or compared.
package normalize

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/unicode/norm"
)

// htmlTagPattern detects descriptions pasted from web pages.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// Name trims s, drops null bytes, composes unicode (NFC) and collapses runs
// of whitespace to one space. "  Øster  Fælled " -> "Øster Fælled".
func Name(s string) string {
	s = norm.NFC.String(sanitizeString(s))
	return strings.Join(strings.Fields(s), " ")
}

// AssociationKey is the uniqueness key for an association name. Names that
// differ only in case, width or spacing share a key:
// "Amager  Strand" and "amager strand" -> "amager strand".
// Letters outside ASCII are kept, so "Ørestad" and "Orestad" stay distinct.
func AssociationKey(name string) string {
	s := norm.NFKC.String(sanitizeString(name))
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Description trims a tool description and converts HTML markup to Markdown.
// Plain text is returned trimmed but otherwise unchanged.
func Description(s string) string {
	s = strings.TrimSpace(sanitizeString(s))
	if s == "" || !containsHTML(s) {
		return s
	}
	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}

func containsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// sanitizeString removes null bytes, which break JSON and SQLite text columns.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
