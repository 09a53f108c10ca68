package voice

import (
	"regexp"
	"strings"
	"unicode"
)

// Chunk is one bounded, sentence-aligned slice of reply text queued for
// individual synthesis.
type Chunk struct {
	Index int
	Text  string
}

// DefaultChunkBound is the soft cap on a chunk's byte length. A single
// sentence longer than the bound is still emitted whole; synthesis quality
// degrades when sentences are cut mid-thought.
const DefaultChunkBound = 500

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechFencedBlockPattern  = regexp.MustCompile("(?s)```.*?```")
	speechInlineCodePattern   = regexp.MustCompile("`[^`]*`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// ChunkSpeakableText cleans a model reply and splits it into speakable
// chunks. Sentences are never split across chunks; consecutive sentences are
// packed greedily under the bound. Empty or whitespace-only input yields nil.
func ChunkSpeakableText(raw string, bound int) []Chunk {
	if bound <= 0 {
		bound = DefaultChunkBound
	}

	cleaned := sanitizeSpeechText(raw)
	if cleaned == "" {
		return nil
	}

	sentences := splitSentences(cleaned)
	chunks := make([]Chunk, 0, len(sentences))
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: cur.String()})
		cur.Reset()
	}

	for _, s := range sentences {
		switch {
		case cur.Len() == 0:
			cur.WriteString(s)
		case cur.Len()+1+len(s) <= bound:
			cur.WriteByte(' ')
			cur.WriteString(s)
		default:
			flush()
			cur.WriteString(s)
		}
		if cur.Len() >= bound {
			flush()
		}
	}
	flush()

	return chunks
}

// splitSentences cuts cleaned text on terminal punctuation (.?!), keeping
// closing quotes and brackets attached to the sentence they close. A trailing
// fragment without terminal punctuation is returned as the last element.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)

	flushTo := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminator(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isClosingMark(runes[j]) {
			j++
		}
		if j >= len(runes) || unicode.IsSpace(runes[j]) {
			flushTo(j)
			i = j - 1
		}
	}
	flushTo(len(runes))

	return out
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

func isClosingMark(r rune) bool {
	switch r {
	case ')', ']', '}', '"', '\'', '”', '’', '»':
		return true
	default:
		return false
	}
}

// sanitizeSpeechText removes markup and embedded export blocks from model
// text so TTS sounds conversational. The output has single-space separators
// and no leading or trailing whitespace.
func sanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechFencedBlockPattern.ReplaceAllString(raw, " ")
	raw = speechInlineCodePattern.ReplaceAllString(raw, " ")
	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			// Drops emoji and symbol-heavy glyphs that sound unnatural when spoken.
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}
