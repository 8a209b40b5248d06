package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/pkg/types"
)

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultChunkSize, c.ChunkSize())
	assert.Equal(t, DefaultOverlap, c.Overlap())
	assert.NoError(t, c.Validate())

	c = New(WithChunkSize(100), WithOverlap(10))
	assert.Equal(t, 100, c.ChunkSize())
	assert.Equal(t, 10, c.Overlap())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero chunk size", []Option{WithChunkSize(0)}},
		{"negative overlap", []Option{WithOverlap(-1)}},
		{"zero token factor", []Option{WithTokenFactor(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.opts...).Validate()
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	c := New()
	assert.Equal(t, 1, c.EstimateTokens(""))
	assert.Equal(t, 1, c.EstimateTokens("..."))
	assert.Equal(t, 2, c.EstimateTokens("one"))
	assert.Equal(t, 4, c.EstimateTokens("one two three"))
	assert.Equal(t, 3, c.EstimateTokens("größe über_all"))
}

func TestChunk_Empty(t *testing.T) {
	c := New()
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t"))
}

func TestChunk_ThreeSentences(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(0))

	chunks := c.Chunk("A. B. C.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A. B. C.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 8, chunks[0].EndChar)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 6, chunks[0].TokenCount)
}

func TestChunk_NoTerminalPunctuation(t *testing.T) {
	c := New()
	chunks := c.Chunk("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 11, chunks[0].EndChar)
}

func TestChunk_PunctuationOnlyFallsBack(t *testing.T) {
	c := New()
	chunks := c.Chunk("?!")
	require.Len(t, chunks, 1)
	assert.Equal(t, "?!", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 2, chunks[0].EndChar)
	assert.Equal(t, 1, chunks[0].TokenCount)
}

func TestChunk_LongSentenceEmittedWhole(t *testing.T) {
	c := New(WithChunkSize(2), WithOverlap(0))
	text := "This sentence has far more words than the budget allows."

	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Greater(t, chunks[0].TokenCount, 2)
}

func TestChunk_OverlapCarriesWholeSentences(t *testing.T) {
	// Every sentence is two words, ceil(2 * 1.3) = 3 tokens
	c := New(WithChunkSize(6), WithOverlap(3))

	chunks := c.Chunk("One two. Three four. Five six. Seven eight.")
	require.Len(t, chunks, 3)
	assert.Equal(t, "One two. Three four.", chunks[0].Text)
	assert.Equal(t, "Three four. Five six.", chunks[1].Text)
	assert.Equal(t, "Five six. Seven eight.", chunks[2].Text)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, 6, ch.TokenCount)
	}
}

func TestChunk_OverlapZeroCarriesNothing(t *testing.T) {
	c := New(WithChunkSize(3), WithOverlap(0))

	chunks := c.Chunk("One two. Three four. Five six.")
	require.Len(t, chunks, 3)
	assert.Equal(t, "One two.", chunks[0].Text)
	assert.Equal(t, "Three four.", chunks[1].Text)
	assert.Equal(t, "Five six.", chunks[2].Text)
}

func TestChunk_OverlapLargerThanChunkSizeTerminates(t *testing.T) {
	c := New(WithChunkSize(3), WithOverlap(1000))

	chunks := c.Chunk("A b. C d. E f. G h. I j.")
	require.Len(t, chunks, 5)
	assert.Equal(t, "A b. C d. E f. G h. I j.", chunks[4].Text)
}

func TestChunk_RuneOffsets(t *testing.T) {
	c := New(WithChunkSize(1), WithOverlap(0))
	text := "Héllo wörld. Zweite."

	chunks := c.Chunk(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 12, chunks[0].EndChar)
	assert.Equal(t, 12, chunks[1].StartChar)
	assert.Equal(t, 20, chunks[1].EndChar)

	runes := []rune(text)
	assert.Equal(t, "Zweite.", strings.TrimSpace(string(runes[chunks[1].StartChar:chunks[1].EndChar])))
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(WithChunkSize(20), WithOverlap(5))
	text := randomText(rand.New(rand.NewSource(7)), 80)

	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

// randomText builds n sentences of 1-12 words with mixed terminators
func randomText(r *rand.Rand, n int) string {
	words := []string{"alpha", "beta", "gamma", "delta", "épsilon", "zeta", "eta", "θ", "iota", "kappa"}
	terms := []string{".", "!", "?", "...", "?!"}
	var b strings.Builder
	for i := 0; i < n; i++ {
		count := 1 + r.Intn(12)
		for j := 0; j < count; j++ {
			if j > 0 {
				b.WriteString(" ")
			}
			b.WriteString(words[r.Intn(len(words))])
		}
		b.WriteString(terms[r.Intn(len(terms))])
		if r.Intn(4) == 0 {
			b.WriteString("\n\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestChunk_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		text := randomText(r, 1+r.Intn(60))
		size := 1 + r.Intn(60)

		t.Run(fmt.Sprintf("trial-%d", trial), func(t *testing.T) {
			length := len([]rune(text))

			// Without overlap, chunks concatenate back into the sentence sequence
			plain := New(WithChunkSize(size), WithOverlap(0))
			sentences := plain.splitSentences(text)
			want := make([]string, len(sentences))
			for i, s := range sentences {
				want[i] = s.text
			}
			chunks := plain.Chunk(text)
			got := make([]string, len(chunks))
			for i, ch := range chunks {
				got[i] = ch.Text
			}
			assert.Equal(t, strings.Join(want, " "), strings.Join(got, " "))

			// Offsets stay ordered and inside the text, with or without overlap
			for _, c := range []*Chunker{plain, New(WithChunkSize(size), WithOverlap(r.Intn(30)))} {
				for i, ch := range c.Chunk(text) {
					assert.Equal(t, i, ch.Index)
					assert.NotEmpty(t, ch.Text)
					assert.LessOrEqual(t, 0, ch.StartChar)
					assert.LessOrEqual(t, ch.StartChar, ch.EndChar)
					assert.LessOrEqual(t, ch.EndChar, length)
				}
			}
		})
	}
}
