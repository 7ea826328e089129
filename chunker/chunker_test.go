package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"lowercases", "Apple Inc. Announced", "apple inc. announced"},
		{"collapses whitespace", "a   b\n\n\tc", "a b c"},
		{"keeps punctuation", `Tim said: "yes!" - ok; fine? it's, done.`, `tim said: "yes!" - ok; fine? it's, done.`},
		{"strips symbols", "price $5 (approx) @home #tag", "price 5 approx home tag"},
		{"symbols do not fuse words", "foo/bar", "foo bar"},
		{"keeps underscore and digits", "snake_case 42", "snake_case 42"},
		{"keeps unicode letters", "Société Générale über", "société générale über"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Apple Inc. announced a new iPhone model yesterday.",
		"  The tech giant, based in Cupertino,\n said <b>the</b> device — would be available. ",
		"Ünïcödé & symbols © ™ → ok?! 'quoted' \"double\"",
		"tabs\tand\r\nnewlines",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

// ---------------------------------------------------------------------------
// Segment
// ---------------------------------------------------------------------------

func TestSegmentEmpty(t *testing.T) {
	assert.Empty(t, Segment("", 500))
	assert.Empty(t, Segment("   ", 500))
}

func TestSegmentSingleShortSentence(t *testing.T) {
	got := Segment("apple inc. announced a new iphone.", 500)
	require.Len(t, got, 1)
	assert.Equal(t, "apple inc. announced a new iphone.", got[0])
}

func TestSegmentSplitsOnTerminators(t *testing.T) {
	got := splitSentences("one. two! three? four")
	assert.Equal(t, []string{"one.", "two!", "three?", "four"}, got)
}

func TestSegmentNoSplitWithoutWhitespace(t *testing.T) {
	// "3.5" and "inc.x" have no whitespace after the dot.
	got := splitSentences("version 3.5 of inc.x shipped. next")
	assert.Equal(t, []string{"version 3.5 of inc.x shipped.", "next"}, got)
}

func TestSegmentPacksGreedily(t *testing.T) {
	text := "aaaa. bbbb. cccc. dddd."
	// Each sentence is 5 chars; two joined with a space are 11.
	got := Segment(text, 11)
	assert.Equal(t, []string{"aaaa. bbbb.", "cccc. dddd."}, got)

	got = Segment(text, 10)
	assert.Equal(t, []string{"aaaa.", "bbbb.", "cccc.", "dddd."}, got)
}

func TestSegmentOversizedSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	text := "short one. " + long + " tail."
	got := Segment(text, 50)

	require.Len(t, got, 3)
	assert.Equal(t, "short one.", got[0])
	assert.Equal(t, strings.TrimSpace(long), got[1])
	assert.Equal(t, "tail.", got[2])
}

func TestSegmentOversizedFirstSentence(t *testing.T) {
	long := strings.Repeat("x", 80) + "."
	got := Segment(long+" y.", 20)
	require.Len(t, got, 2)
	assert.Equal(t, long, got[0])
	assert.Equal(t, "y.", got[1])
}

func TestSegmentDefaultMaxLen(t *testing.T) {
	sentence := strings.Repeat("a", 99) + "."
	text := strings.TrimSpace(strings.Repeat(sentence+" ", 12))
	got := Segment(text, 0)
	for _, s := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(s), DefaultMaxChars)
	}
	assert.Greater(t, len(got), 1)
}

func TestSegmentProperties(t *testing.T) {
	raw := `Apple Inc. announced a new iPhone model yesterday. The tech giant, based in Cupertino,
    said the device would be available next month. Tim Cook, CEO of Apple, presented the new product.
    The iPhone features an improved camera system and longer battery life. Apple's stock price rose
    following the announcement. Analysts predict strong sales for the holiday season. Meanwhile,
    Samsung Electronics is preparing its own product launch. The South Korean company plans to
    unveil a new Galaxy smartphone next week. Industry experts expect intense competition between
    the two tech giants in the coming months. Both companies are investing heavily in research
    and development. The smartphone market has become increasingly competitive in recent years.`

	text := Normalize(raw)
	sentences := splitSentences(text)

	for _, maxLen := range []int{40, 120, 200, 500, 5000} {
		segs := Segment(text, maxLen)
		require.NotEmpty(t, segs)

		for _, s := range segs {
			assert.NotEmpty(t, s, "maxLen=%d produced an empty segment", maxLen)
			if utf8.RuneCountInString(s) > maxLen {
				// Only allowed when the segment is a single sentence.
				assert.Len(t, splitSentences(s), 1, "oversized multi-sentence segment at maxLen=%d: %q", maxLen, s)
			}
		}

		// Rejoining the segments reconstructs the sentence sequence.
		assert.Equal(t, strings.Join(sentences, " "), strings.Join(segs, " "), "maxLen=%d", maxLen)
	}
}

func TestChunkerChunk(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultMaxChars, c.MaxChars())

	got := c.Chunk("Hello, World! <p>Second</p> sentence.")
	assert.Equal(t, []string{"hello, world! p second p sentence."}, got)
	assert.Empty(t, c.Chunk(""))

	small := New(Config{MaxChars: 15})
	got = small.Chunk("Hello, World! <p>Second</p> sentence.")
	assert.Equal(t, []string{"hello, world!", "p second p sentence."}, got)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("one"))
	assert.Equal(t, 13, EstimateTokens("a b c d e f g h i j"))
}
