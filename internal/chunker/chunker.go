// Package chunker splits extracted document text into overlapping
// semantic segments, the unit of embedding and retrieval.
//
// Splitting is paragraph-first: whole paragraphs are grouped until the
// word target is reached; a paragraph longer than the target is sub-split
// at sentence boundaries. Adjacent segments overlap by a fixed number of
// words so retrieval keeps cross-boundary context. Chunking is fully
// deterministic: identical input and options yield identical segments.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// Default chunking parameters.
const (
	DefaultTargetWords  = 400
	DefaultOverlapWords = 50
)

// Options control segment sizing.
type Options struct {
	// TargetWords is the word budget per segment. Default: 400.
	TargetWords int `koanf:"target_words"`

	// OverlapWords is how many trailing words of segment i are repeated
	// as leading words of segment i+1. Default: 50.
	OverlapWords int `koanf:"overlap_words"`
}

// ApplyDefaults sets default values for unset fields.
func (o *Options) ApplyDefaults() {
	if o.TargetWords <= 0 {
		o.TargetWords = DefaultTargetWords
	}
	if o.OverlapWords < 0 {
		o.OverlapWords = DefaultOverlapWords
	}
	if o.OverlapWords >= o.TargetWords {
		o.OverlapWords = o.TargetWords / 4
	}
}

// Segment is a draft chunk produced from one document.
type Segment struct {
	// Index is the zero-based segment position.
	Index int

	// Content is the segment text, including the leading overlap carried
	// over from the previous segment.
	Content string

	// StartOffset and EndOffset are byte offsets of the segment's own text
	// (excluding the overlap) in the original input.
	StartOffset int
	EndOffset   int

	// WordCount counts the words of the segment's own text.
	WordCount int

	// Keywords are the most frequent content words of the segment.
	Keywords []string

	// Language is the detected dominant language of the input.
	Language string
}

// Result is the outcome of chunking one document.
type Result struct {
	Segments []Segment

	// Language is the detected dominant language ("und" when undetermined).
	Language string

	// NoTextContent is set when the input contained no indexable words
	// (whitespace or symbols only). Segments is empty in that case.
	NoTextContent bool
}

// Chunker splits text according to its options.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero-valued options get defaults.
func New(opts Options) *Chunker {
	opts.ApplyDefaults()
	return &Chunker{opts: opts}
}

// span is a sentence or paragraph with its position in the input.
type span struct {
	text  string
	start int
	end   int
	words int
}

var (
	paragraphSep = regexp.MustCompile(`\n[ \t\r]*\n+`)
	sentenceEnd  = regexp.MustCompile(`(?s).*?[.!?。！？](\s+|$)`)
)

// Chunk splits text into overlapping segments.
//
// Empty input yields an empty result. Input without any indexable words
// yields an empty result with NoTextContent set.
func (c *Chunker) Chunk(text string) *Result {
	res := &Result{Language: "und"}
	if text == "" {
		return res
	}
	if strings.TrimSpace(text) == "" {
		res.NoTextContent = true
		return res
	}

	if !hasIndexableText(text) {
		res.NoTextContent = true
		return res
	}

	units := c.splitUnits(text)
	if len(units) == 0 {
		return res
	}

	res.Language = DetectLanguage(text)

	bodies := c.groupUnits(units)
	res.Segments = c.assemble(text, bodies, res.Language)
	return res
}

// splitUnits breaks text into paragraph spans, sub-splitting oversized
// paragraphs at sentence boundaries.
func (c *Chunker) splitUnits(text string) []span {
	var units []span
	for _, p := range splitWithOffsets(text, paragraphSep) {
		trimmed, start, end := trimSpan(text, p.start, p.end)
		if trimmed == "" {
			continue
		}
		words := len(strings.Fields(trimmed))
		if words <= c.opts.TargetWords {
			units = append(units, span{text: trimmed, start: start, end: end, words: words})
			continue
		}
		units = append(units, splitSentences(text, start, end)...)
	}
	return units
}

// groupUnits packs consecutive units into bodies approaching the target.
// A body may exceed the target by at most its final unit (one sentence or
// one sub-target paragraph).
func (c *Chunker) groupUnits(units []span) [][]span {
	var bodies [][]span
	var current []span
	words := 0
	for _, u := range units {
		if words > 0 && words+u.words > c.opts.TargetWords {
			bodies = append(bodies, current)
			current = nil
			words = 0
		}
		current = append(current, u)
		words += u.words
	}
	if len(current) > 0 {
		bodies = append(bodies, current)
	}
	return bodies
}

// assemble renders final segments with overlap, offsets and keywords.
func (c *Chunker) assemble(text string, bodies [][]span, language string) []Segment {
	segments := make([]Segment, 0, len(bodies))
	var prevBody string
	for i, body := range bodies {
		start := body[0].start
		end := body[len(body)-1].end
		bodyText := text[start:end]

		content := bodyText
		if i > 0 && c.opts.OverlapWords > 0 {
			overlap := trailingWords(prevBody, c.opts.OverlapWords)
			if overlap != "" {
				content = overlap + "\n" + bodyText
			}
		}

		segments = append(segments, Segment{
			Index:       i,
			Content:     content,
			StartOffset: start,
			EndOffset:   end,
			WordCount:   len(strings.Fields(bodyText)),
			Keywords:    ExtractKeywords(bodyText, DefaultKeywordCount),
			Language:    language,
		})
		prevBody = bodyText
	}
	return segments
}

// trailingWords returns the last n words of s joined by single spaces.
func trailingWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return strings.Join(fields, " ")
}

// splitWithOffsets splits text on a separator pattern, keeping offsets.
func splitWithOffsets(text string, sep *regexp.Regexp) []span {
	var spans []span
	pos := 0
	for _, loc := range sep.FindAllStringIndex(text, -1) {
		if loc[0] > pos {
			spans = append(spans, span{start: pos, end: loc[0]})
		}
		pos = loc[1]
	}
	if pos < len(text) {
		spans = append(spans, span{start: pos, end: len(text)})
	}
	return spans
}

// splitSentences splits text[start:end] into sentence spans.
func splitSentences(text string, start, end int) []span {
	segment := text[start:end]
	var units []span
	pos := 0
	for pos < len(segment) {
		loc := sentenceEnd.FindStringIndex(segment[pos:])
		var sEnd int
		if loc == nil {
			sEnd = len(segment)
		} else {
			sEnd = pos + loc[1]
		}
		trimmed, s, e := trimSpan(text, start+pos, start+sEnd)
		if trimmed != "" {
			units = append(units, span{
				text:  trimmed,
				start: s,
				end:   e,
				words: len(strings.Fields(trimmed)),
			})
		}
		pos = sEnd
	}
	return units
}

// hasIndexableText reports whether text contains at least one letter or
// digit, i.e. anything worth chunking and indexing.
func hasIndexableText(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// trimSpan shrinks [start,end) to exclude surrounding whitespace.
func trimSpan(text string, start, end int) (string, int, int) {
	s := text[start:end]
	left := len(s) - len(strings.TrimLeft(s, " \t\r\n"))
	right := len(s) - len(strings.TrimRight(s, " \t\r\n"))
	start += left
	end -= right
	if start >= end {
		return "", start, start
	}
	return text[start:end], start, end
}
