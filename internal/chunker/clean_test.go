package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "no markup here", "no markup here"},
		{"nested tags", "<p>Hello <b>World</b></p>", "Hello World"},
		{"list items", "<ul><li>Go</li><li>SQL</li></ul>", "Go SQL"},
		{"decorative punctuation", "A | B ? C • D", "A B C D"},
		{"entities", "Tom &amp; Jerry&nbsp;Show", "Tom & Jerry Show"},
		{"script dropped", "<script>alert(1)</script>Text", "Text"},
		{"style dropped", "<style>p { color: red }</style><p>Body</p>", "Body"},
		{"unterminated tag", "<div>unterminated", "unterminated"},
		{"line breaks", "<p>line one<br/>line two</p>\n\n\t", "line one line two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestTerms(t *testing.T) {
	assert.Nil(t, Terms(""))
	assert.Nil(t, Terms(" -- !! "))
	assert.Equal(t, []string{"python", "developer", "remote"}, Terms("Python developer (remote), python!"))
	assert.Equal(t, []string{"c", "go", "in", "köln"}, Terms("C++/Go in Köln"))
}
