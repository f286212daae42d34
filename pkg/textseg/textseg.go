// Package textseg splits a streamed text response into speakable chunks.
//
// Deltas from a generation backend are accumulated and cut at the first
// sentence boundary (". ! ? :" plus trailing whitespace). Chunks never
// exceed a word limit: an over-long span is cut after that many words,
// punctuation or not, so a single synthesis request stays bounded.
package textseg

import (
	"errors"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode"
)

// DefaultMaxWords is the largest chunk handed to synthesis.
const DefaultMaxWords = 50

// ErrConsumed is yielded when a segment sequence is iterated a second time.
var ErrConsumed = errors.New("textseg: sequence already consumed")

var boundary = regexp.MustCompile(`[.!?:]\s*`)

// emphasis lists formatting markers removed from deltas.
const emphasis = "*"

// TextChunk is one segment of a response, ready for synthesis.
type TextChunk struct {
	Text     string
	Sequence int
}

// Words returns the number of whitespace-separated words in the chunk.
func (c TextChunk) Words() int {
	return len(strings.Fields(c.Text))
}

// Segmenter cuts delta streams into chunks.
//
// Sequence numbers continue across calls to Segment, so one Segmenter per
// session gives gapless numbering for that session. A Segmenter must not be
// used by two sequences at the same time.
type Segmenter struct {
	maxWords int
	logger   *slog.Logger
	next     int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithMaxWords sets the chunk word limit. Values below 1 are ignored.
func WithMaxWords(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxWords = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		maxWords: DefaultMaxWords,
		logger:   slog.Default(),
		next:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "textseg")
	return s
}

// MaxWords returns the configured word limit.
func (s *Segmenter) MaxWords() int {
	return s.maxWords
}

// NextSequence returns the sequence number the next chunk will get.
func (s *Segmenter) NextSequence() int {
	return s.next
}

// Segment returns a lazy sequence of chunks built from deltas.
//
// Chunks are produced as soon as a boundary or the word limit is reached.
// When deltas ends, the remaining buffer is flushed. An error from deltas
// is passed through and ends the sequence without flushing. The returned
// sequence can be ranged over once; later attempts yield ErrConsumed.
func (s *Segmenter) Segment(deltas iter.Seq2[string, error]) iter.Seq2[TextChunk, error] {
	var used atomic.Bool

	return func(yield func(TextChunk, error) bool) {
		if used.Swap(true) {
			yield(TextChunk{}, ErrConsumed)
			return
		}

		var buf strings.Builder
		emit := func(text string) bool {
			c := TextChunk{Text: text, Sequence: s.next}
			s.next++
			s.logger.Debug("chunk ready", "seq", c.Sequence, "words", c.Words())
			return yield(c, nil)
		}

		for delta, err := range deltas {
			if err != nil {
				yield(TextChunk{}, err)
				return
			}
			buf.WriteString(stripEmphasis(delta))

			rest, ok := s.drain(buf.String(), emit)
			if !ok {
				return
			}
			buf.Reset()
			buf.WriteString(rest)
		}

		s.flush(buf.String(), emit)
	}
}

// Split segments a complete text.
func (s *Segmenter) Split(text string) []TextChunk {
	var chunks []TextChunk
	single := func(yield func(string, error) bool) {
		yield(text, nil)
	}
	for c, err := range s.Segment(single) {
		if err != nil {
			break
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// drain emits every chunk that is complete in buf and returns what is left.
// ok is false when the consumer stopped early.
func (s *Segmenter) drain(buf string, emit func(string) bool) (rest string, ok bool) {
	for {
		if loc := boundary.FindStringIndex(buf); loc != nil {
			span := buf[:loc[1]]
			if countWords(span) <= s.maxWords {
				buf = buf[loc[1]:]
				if text := strings.TrimSpace(span); text != "" {
					if !emit(text) {
						return buf, false
					}
				}
				continue
			}
		} else if countWords(buf) <= s.maxWords {
			return buf, true
		}

		head, tail := splitWords(buf, s.maxWords)
		buf = tail
		if !emit(head) {
			return buf, false
		}
	}
}

// flush emits the tail of a finished stream.
func (s *Segmenter) flush(buf string, emit func(string) bool) {
	for countWords(buf) > s.maxWords {
		head, tail := splitWords(buf, s.maxWords)
		buf = tail
		if !emit(head) {
			return
		}
	}
	if text := strings.TrimSpace(buf); text != "" {
		emit(text)
	}
}

func stripEmphasis(s string) string {
	if !strings.ContainsAny(s, emphasis) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(emphasis, r) {
			return -1
		}
		return r
	}, s)
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// splitWords cuts s after its n-th word. head is trimmed; tail keeps its
// leading whitespace so a later boundary scan sees the original text.
func splitWords(s string, n int) (head, tail string) {
	words := 0
	inWord := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if inWord {
				words++
				inWord = false
				if words == n {
					return strings.TrimSpace(s[:i]), s[i:]
				}
			}
			continue
		}
		inWord = true
	}
	return strings.TrimSpace(s), ""
}
