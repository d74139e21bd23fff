package chunker

import (
	"strings"
	"testing"

	"github.com/dshills/jobsearch-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(DefaultMaxTokens, DefaultOverlapTokens)
	require.NoError(t, err)
	assert.Equal(t, 400, c.maxTokens)
	assert.Equal(t, 50, c.overlapTokens)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		overlap int
	}{
		{"zero max", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals max", 10, 10},
		{"overlap above max", 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.max, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		overlap int
		text    string
		want    []string
	}{
		{
			name:    "empty input",
			max:     5,
			overlap: 2,
			text:    "",
			want:    nil,
		},
		{
			name:    "whitespace only",
			max:     5,
			overlap: 2,
			text:    " \n\t ",
			want:    nil,
		},
		{
			name:    "fits in one window",
			max:     400,
			overlap: 50,
			text:    "Hello world. How are you?",
			want:    []string{"Hello world. How are you?"},
		},
		{
			name:    "overlap carried into next window",
			max:     5,
			overlap: 2,
			text:    "a b c. d e f. g h.",
			want:    []string{"a b c.", "b c. d e f.", "e f. g h."},
		},
		{
			name:    "oversized unit kept whole",
			max:     3,
			overlap: 1,
			text:    "one two three four five. six.",
			want:    []string{"one two three four five.", "five. six."},
		},
		{
			name:    "no terminal punctuation falls back to tokens",
			max:     2,
			overlap: 0,
			text:    "alpha beta gamma",
			want:    []string{"alpha beta", "gamma"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.max, tt.overlap)
			require.NoError(t, err)

			got := c.Chunk(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunk_WindowBound(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("Backend engineers build reliable services in Go every day. ")
	}

	c, err := New(40, 10)
	require.NoError(t, err)

	chunks := c.Chunk(sb.String())
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.NotEmpty(t, chunk)
		assert.LessOrEqual(t, CountTokens(chunk), 40, "chunk %d exceeds window", i)
	}
}

func TestChunk_Restartable(t *testing.T) {
	c := Default()
	text := "First sentence here. Second sentence follows! Third one?"

	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 3, CountTokens("  one two\tthree\n"))
}
