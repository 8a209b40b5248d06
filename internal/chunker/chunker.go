package chunker

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/docindex-mcp/pkg/types"
)

const (
	// DefaultChunkSize is the target chunk size in approximate tokens
	DefaultChunkSize = 512

	// DefaultOverlap is the number of approximate tokens carried into the
	// next chunk
	DefaultOverlap = 50

	// DefaultTokenFactor converts a word count into approximate tokens
	DefaultTokenFactor = 1.3
)

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Chunk is one passage of a page. Offsets are in characters of the page text.
type Chunk struct {
	Text       string
	Index      int
	StartChar  int
	EndChar    int
	TokenCount int
}

// sentence is a trimmed sentence with the offsets of its untrimmed match
type sentence struct {
	text   string
	start  int
	end    int
	tokens int
}

// Chunker splits text into sentence-aligned, overlapping chunks
type Chunker struct {
	chunkSize   int
	overlap     int
	tokenFactor float64
}

// Option configures a Chunker
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in approximate tokens
func WithChunkSize(n int) Option {
	return func(c *Chunker) { c.chunkSize = n }
}

// WithOverlap sets the overlap in approximate tokens
func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlap = n }
}

// WithTokenFactor sets the words-to-tokens multiplier
func WithTokenFactor(f float64) Option {
	return func(c *Chunker) { c.tokenFactor = f }
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultOverlap,
		tokenFactor: DefaultTokenFactor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the chunking parameters
func (c *Chunker) Validate() error {
	if c.chunkSize < 1 {
		return fmt.Errorf("%w: chunk size must be >= 1, got %d", types.ErrValidation, c.chunkSize)
	}
	if c.overlap < 0 {
		return fmt.Errorf("%w: overlap must be >= 0, got %d", types.ErrValidation, c.overlap)
	}
	if c.tokenFactor <= 0 {
		return fmt.Errorf("%w: token factor must be > 0", types.ErrValidation)
	}
	return nil
}

// ChunkSize returns the target chunk size
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the overlap size
func (c *Chunker) Overlap() int { return c.overlap }

// EstimateTokens approximates the token count of text from its word count
func (c *Chunker) EstimateTokens(text string) int {
	words := len(wordPattern.FindAllStringIndex(text, -1))
	tokens := int(math.Ceil(float64(words) * c.tokenFactor))
	if tokens < 1 {
		return 1
	}
	return tokens
}

// Chunk splits text into chunks. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	sentences := c.splitSentences(text)
	if len(sentences) == 0 {
		return []Chunk{}
	}

	chunks := make([]Chunk, 0)
	var current []sentence
	currentTokens := 0

	for _, s := range sentences {
		if len(current) > 0 && currentTokens+s.tokens > c.chunkSize {
			chunks = append(chunks, buildChunk(current, len(chunks)))
			current = c.overlapWindow(current)
			currentTokens = sumTokens(current)
		}
		current = append(current, s)
		currentTokens += s.tokens
	}

	if len(current) > 0 {
		chunks = append(chunks, buildChunk(current, len(chunks)))
	}
	return chunks
}

// splitSentences scans text for sentences. If text has content but no
// sentence matches, the whole text is one sentence.
func (c *Chunker) splitSentences(text string) []sentence {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Byte offsets from the regexp are converted to rune offsets
	// incrementally; matches arrive in ascending order.
	lastByte, lastRune := 0, 0
	runeAt := func(b int) int {
		lastRune += utf8.RuneCountInString(text[lastByte:b])
		lastByte = b
		return lastRune
	}

	sentences := make([]sentence, 0)
	for _, m := range sentencePattern.FindAllStringIndex(text, -1) {
		start := runeAt(m[0])
		end := runeAt(m[1])
		trimmed := strings.TrimSpace(text[m[0]:m[1]])
		if trimmed == "" {
			continue
		}
		sentences = append(sentences, sentence{
			text:   trimmed,
			start:  start,
			end:    end,
			tokens: c.EstimateTokens(trimmed),
		})
	}

	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		sentences = append(sentences, sentence{
			text:   trimmed,
			start:  0,
			end:    utf8.RuneCountInString(text),
			tokens: c.EstimateTokens(trimmed),
		})
	}
	return sentences
}

// overlapWindow returns the trailing whole sentences of closed whose tokens
// first reach the overlap size
func (c *Chunker) overlapWindow(closed []sentence) []sentence {
	if c.overlap <= 0 {
		return nil
	}
	tokens := 0
	i := len(closed)
	for i > 0 && tokens < c.overlap {
		i--
		tokens += closed[i].tokens
	}
	window := make([]sentence, len(closed)-i)
	copy(window, closed[i:])
	return window
}

func buildChunk(sentences []sentence, index int) Chunk {
	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.text
	}
	return Chunk{
		Text:       strings.Join(texts, " "),
		Index:      index,
		StartChar:  sentences[0].start,
		EndChar:    sentences[len(sentences)-1].end,
		TokenCount: sumTokens(sentences),
	}
}

func sumTokens(sentences []sentence) int {
	total := 0
	for _, s := range sentences {
		total += s.tokens
	}
	return total
}
