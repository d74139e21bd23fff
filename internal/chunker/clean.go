package chunker

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// decorative lists characters that carry no meaning in posting text.
var decorative = strings.NewReplacer("|", " ", "?", " ", "•", " ")

// Clean strips markup from an HTML fragment and returns single-spaced plain
// text. Entities are decoded and script or style bodies are dropped.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))

	skip := 0
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(decorative.Replace(b.String()))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if isRawTextTag(z) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if isRawTextTag(z) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func isRawTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	return bytes.Equal(name, []byte("script")) || bytes.Equal(name, []byte("style"))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Terms returns the distinct lowercase word terms of text in first-seen
// order. Anything that is not a letter or digit separates terms.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
