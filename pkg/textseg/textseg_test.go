package textseg

import (
	"errors"
	"iter"
	"strings"
	"testing"
	"unicode"
)

func deltas(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func collect(t *testing.T, seq iter.Seq2[TextChunk, error]) []TextChunk {
	t.Helper()
	var out []TextChunk
	for c, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func texts(chunks []TextChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func words(n int, w string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = w
	}
	return strings.Join(parts, " ")
}

func TestSegment_SentenceBoundaries(t *testing.T) {
	s := New()
	got := texts(collect(t, s.Segment(deltas("Hello", " there.", " How are you today?"))))

	want := []string{"Hello there.", "How are you today?"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSegment_LongUnpunctuatedDelta(t *testing.T) {
	s := New()
	chunks := collect(t, s.Segment(deltas(words(120, "word"))))

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for i, want := range []int{50, 50, 20} {
		if chunks[i].Words() != want {
			t.Errorf("Chunk %d: %d words, want %d", i, chunks[i].Words(), want)
		}
	}
}

func TestSegment_Cases(t *testing.T) {
	tests := []struct {
		name   string
		deltas []string
		want   []string
	}{
		{
			name:   "emphasis stripped",
			deltas: []string{"**Xin", " chào**", " bạn!"},
			want:   []string{"Xin chào bạn!"},
		},
		{
			name:   "colon is a boundary",
			deltas: []string{"Note: this matters"},
			want:   []string{"Note:", "this matters"},
		},
		{
			name:   "several sentences in one delta",
			deltas: []string{"One. Two! Three? Four"},
			want:   []string{"One.", "Two!", "Three?", "Four"},
		},
		{
			name:   "boundary split across deltas",
			deltas: []string{"Wait", ".", "..", " ok"},
			want:   []string{"Wait.", ".", ".", "ok"},
		},
		{
			name:   "whitespace only",
			deltas: []string{"   ", "\n"},
			want:   nil,
		},
		{
			name:   "empty stream",
			deltas: nil,
			want:   nil,
		},
		{
			name:   "trailing remainder",
			deltas: []string{"Done. and then"},
			want:   []string{"Done.", "and then"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(collect(t, New().Segment(deltas(tt.deltas...))))
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegment_LongSentenceKeepsBoundaryForLater(t *testing.T) {
	s := New(WithMaxWords(3))
	got := texts(collect(t, s.Segment(deltas("a b c d e. f"))))

	want := []string{"a b c", "d e.", "f"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSegment_SequenceGaplessAcrossResponses(t *testing.T) {
	s := New()

	first := collect(t, s.Segment(deltas("A. B.")))
	second := collect(t, s.Segment(deltas("C. D.")))

	all := append(first, second...)
	for i, c := range all {
		if c.Sequence != i+1 {
			t.Errorf("Chunk %d has sequence %d", i, c.Sequence)
		}
	}
	if s.NextSequence() != 5 {
		t.Errorf("Expected next sequence 5, got %d", s.NextSequence())
	}
}

func TestSegment_NotRestartable(t *testing.T) {
	seq := New().Segment(deltas("Hi."))
	collect(t, seq)

	var gotErr error
	for _, err := range seq {
		gotErr = err
	}
	if !errors.Is(gotErr, ErrConsumed) {
		t.Errorf("Expected ErrConsumed, got %v", gotErr)
	}
}

func TestSegment_UpstreamError(t *testing.T) {
	boom := errors.New("stream failed")
	src := func(yield func(string, error) bool) {
		if !yield("First. sec", nil) {
			return
		}
		yield("", boom)
	}

	var got []string
	var gotErr error
	for c, err := range New().Segment(src) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, c.Text)
	}

	if !errors.Is(gotErr, boom) {
		t.Fatalf("Expected upstream error, got %v", gotErr)
	}
	if len(got) != 1 || got[0] != "First." {
		t.Errorf("Expected only the completed chunk, got %q", got)
	}
}

func TestSegment_LazyAndEarlyStop(t *testing.T) {
	pulled := 0
	src := func(yield func(string, error) bool) {
		for _, p := range []string{"One.", " Two.", " Three."} {
			pulled++
			if !yield(p, nil) {
				return
			}
		}
	}

	for c := range New().Segment(src) {
		if c.Text != "One." {
			t.Errorf("Unexpected first chunk %q", c.Text)
		}
		break
	}
	if pulled != 1 {
		t.Errorf("Expected 1 delta pulled before stop, got %d", pulled)
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Inputs exercising the word limit and lossless reassembly.
var propertyInputs = [][]string{
	{words(200, "x")},
	{words(49, "a") + ".", " " + words(51, "b") + "!", " tail"},
	{"*bold* text: ", words(75, "mot"), ". end"},
	{"a.b.c", "d?e", "!f:g"},
	{"Xin chào. ", "Tôi là ", "trợ lý ảo", ", rất vui ", "được gặp bạn!"},
	{strings.Repeat("z ", 333)},
	{"no punctuation at all here"},
}

func TestSegment_WordLimitProperty(t *testing.T) {
	for i, in := range propertyInputs {
		for _, c := range collect(t, New().Segment(deltas(in...))) {
			if c.Words() > DefaultMaxWords {
				t.Errorf("Input %d: chunk %d has %d words", i, c.Sequence, c.Words())
			}
			if c.Text != strings.TrimSpace(c.Text) || c.Text == "" {
				t.Errorf("Input %d: chunk %q is not trimmed", i, c.Text)
			}
		}
	}
}

func TestSegment_LosslessProperty(t *testing.T) {
	for i, in := range propertyInputs {
		chunks := collect(t, New().Segment(deltas(in...)))

		got := stripSpace(strings.Join(texts(chunks), ""))
		want := stripSpace(strings.ReplaceAll(strings.Join(in, ""), "*", ""))
		if got != want {
			t.Errorf("Input %d: reassembled %q, want %q", i, got, want)
		}
	}
}

func TestSplit(t *testing.T) {
	chunks := New().Split("Một. Hai.")
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "Một." || chunks[1].Text != "Hai." {
		t.Errorf("Unexpected chunks %q", texts(chunks))
	}
}
