package chunker

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the segment length used when Config.MaxChars is zero.
const DefaultMaxChars = 500

// Config controls the segmenting behaviour.
type Config struct {
	MaxChars int // Maximum characters per segment. Oversized single sentences are kept whole.
}

// Chunker turns raw document text into extraction-ready segments.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	return &Chunker{cfg: cfg}
}

// MaxChars returns the effective segment limit.
func (c *Chunker) MaxChars() int { return c.cfg.MaxChars }

// Chunk normalizes raw and splits the result into segments.
func (c *Chunker) Chunk(raw string) []string {
	return Segment(Normalize(raw), c.cfg.MaxChars)
}

// Normalize strips characters that carry no meaning for extraction, collapses
// whitespace and lowercases the text. Kept characters are letters, marks,
// digits, underscore, whitespace and the punctuation . , ; : ! ? ' " -
// Everything else becomes a space so adjacent words do not fuse.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return ' '
	}, raw)
	return strings.ToLower(strings.Join(strings.Fields(cleaned), " "))
}

func keepRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), unicode.IsNumber(r):
		return true
	case unicode.IsSpace(r):
		return true
	}
	switch r {
	case '_', '.', ',', ';', ':', '!', '?', '\'', '"', '-':
		return true
	}
	return false
}

// Segment greedily packs sentences into segments of at most maxLen
// characters. A sentence that alone exceeds maxLen is emitted as its own
// segment rather than cut, so an entity mention is never split across two
// extraction calls. maxLen <= 0 selects DefaultMaxChars.
func Segment(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChars
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var segments []string
	var current strings.Builder
	currentLen := 0

	for _, sent := range sentences {
		sentLen := utf8.RuneCountInString(sent)

		if current.Len() > 0 && currentLen+1+sentLen > maxLen {
			segments = append(segments, current.String())
			current.Reset()
			currentLen = 0
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sent)
		currentLen += sentLen
	}

	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// splitSentences splits on '.', '!' or '?' followed by whitespace. The
// terminator stays with its sentence; the whitespace is dropped. Each
// sentence is trimmed and empty ones are discarded.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			flush()
			// Swallow the whole whitespace run.
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	flush()
	return sentences
}

// EstimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}
