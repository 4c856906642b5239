// Package chunker splits extracted document text into overlapping windows
// suitable for embedding.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"gopherai-docqa/internal/model"
)

const (
	// DefaultWindowSize is the default window length in characters.
	DefaultWindowSize = 1000

	// DefaultOverlapFraction is the default share of a window repeated at the
	// start of the next one.
	DefaultOverlapFraction = 0.15

	// pageSeparator joins consecutive pages before windowing.
	pageSeparator = "\n\n"
)

// Span is one chunk of text. Start and End are character offsets into the
// joined page text. Page is the page holding Start and EndPage the page
// holding the last character, so a window that crosses into the next page
// keeps both attributions.
type Span struct {
	Text    string
	Page    int
	EndPage int
	Start   int
	End     int
}

// Chunker produces fixed-size overlapping windows snapped to paragraph,
// sentence or word boundaries. Output depends only on its input.
type Chunker struct {
	window  int
	overlap int
}

// Option configures a Chunker.
type Option func(*settings)

type settings struct {
	window   int
	fraction float64
}

// WithWindowSize sets the window size in characters.
func WithWindowSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.window = size
		}
	}
}

// WithOverlapFraction sets the overlap as a fraction of the window, in [0, 0.5).
func WithOverlapFraction(fraction float64) Option {
	return func(s *settings) {
		if fraction >= 0 && fraction < 0.5 {
			s.fraction = fraction
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	s := settings{window: DefaultWindowSize, fraction: DefaultOverlapFraction}
	for _, opt := range opts {
		opt(&s)
	}
	return &Chunker{
		window:  s.window,
		overlap: int(float64(s.window) * s.fraction),
	}
}

// WindowSize returns the configured window size.
func (c *Chunker) WindowSize() int { return c.window }

// Overlap returns the overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits the text of a paged document. pages[i] holds the text of page
// i+1; page numbers in the result are 1-based.
func (c *Chunker) Chunk(pages []string) []Span {
	var b strings.Builder
	starts := make([]int, 0, len(pages))
	offset := 0
	sepLen := utf8.RuneCountInString(pageSeparator)
	for i, p := range pages {
		if i > 0 {
			b.WriteString(pageSeparator)
			offset += sepLen
		}
		starts = append(starts, offset)
		b.WriteString(p)
		offset += utf8.RuneCountInString(p)
	}
	return c.split([]rune(b.String()), starts)
}

// ChunkText splits text that carries no page information. Every span has
// page model.NoPage.
func (c *Chunker) ChunkText(text string) []Span {
	return c.split([]rune(text), nil)
}

func (c *Chunker) split(runes []rune, pageStarts []int) []Span {
	n := len(runes)
	var spans []Span

	start := skipSpace(runes, 0, n)
	for start < n {
		end := start + c.window
		if end >= n {
			end = n
		} else {
			end = c.snapEnd(runes, pageStarts, start, end)
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			spans = append(spans, Span{
				Text:    text,
				Page:    pageAt(pageStarts, start),
				EndPage: pageAt(pageStarts, lastNonSpace(runes, start, end)),
				Start:   start,
				End:     end,
			})
		}
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = skipSpace(runes, snapStart(runes, next, end), n)
	}
	return spans
}

// snapEnd moves a window end back to the best break in the second half of the
// window: a page start, then a paragraph break, then a sentence end, then
// whitespace. Without any break the hard end is kept.
func (c *Chunker) snapEnd(runes []rune, pageStarts []int, start, end int) int {
	lo := start + c.window/2

	for i := len(pageStarts) - 1; i >= 0; i-- {
		s := pageStarts[i]
		if s > lo && s <= end {
			return s
		}
		if s <= lo {
			break
		}
	}
	for i := end; i > lo; i-- {
		if i-2 >= start && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > lo; i-- {
		if isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end; i > lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

// snapStart moves pos forward to the start of the next word, never past limit.
// If no word start exists before limit, pos is kept.
func snapStart(runes []rune, pos, limit int) int {
	if pos > 0 && !unicode.IsSpace(runes[pos-1]) {
		i := pos
		for i < limit && !unicode.IsSpace(runes[i]) {
			i++
		}
		if i >= limit {
			return pos
		}
		pos = i
	}
	next := skipSpace(runes, pos, limit)
	if next >= limit {
		return limit
	}
	return next
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func skipSpace(runes []rune, pos, limit int) int {
	for pos < limit && unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos
}

func lastNonSpace(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if !unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return start
}

// pageAt returns the 1-based page containing offset, or model.NoPage when the
// text has no page map.
func pageAt(pageStarts []int, offset int) int {
	if len(pageStarts) == 0 {
		return model.NoPage
	}
	page := 1
	for i, s := range pageStarts {
		if s > offset {
			break
		}
		page = i + 1
	}
	return page
}
