package voice

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const punctuationSet = `.,!?;:"'-`

var punctuation = regexp.MustCompile(`[.,!?;:"'\-]`)

// Preprocessor cleans finalized utterances before generation. It is pure
// and safe for concurrent use.
type Preprocessor struct {
	stoplist           map[string]struct{}
	stripPunctuation   bool
	stripSingleLetters bool
	template           string
}

// NewPreprocessor builds a Preprocessor from the preprocessing fields of cfg.
func NewPreprocessor(cfg Config) *Preprocessor {
	p := &Preprocessor{
		stoplist:           make(map[string]struct{}, len(cfg.Stoplist)),
		stripPunctuation:   cfg.StripPunctuation,
		stripSingleLetters: cfg.StripSingleLetters,
		template:           cfg.PromptTemplate,
	}
	for _, w := range cfg.Stoplist {
		if w = strings.TrimSpace(w); w != "" {
			p.stoplist[strings.ToLower(w)] = struct{}{}
		}
	}
	return p
}

// Preprocess normalizes text to NFC, removes stoplist tokens, optionally
// strips punctuation and single-letter tokens, and collapses whitespace.
func (p *Preprocessor) Preprocess(text string) string {
	text = norm.NFC.String(text)
	if p.stripPunctuation {
		text = punctuation.ReplaceAllString(text, " ")
	}

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if _, stop := p.stoplist[strings.ToLower(strings.Trim(f, punctuationSet))]; stop {
			continue
		}
		if p.stripSingleLetters && utf8.RuneCountInString(f) == 1 {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Prompt wraps a preprocessed query in the prompt template. An empty
// template passes the query through.
func (p *Preprocessor) Prompt(query string) string {
	if p.template == "" {
		return query
	}
	if !strings.Contains(p.template, "%s") {
		return p.template + " " + query
	}
	return fmt.Sprintf(p.template, query)
}
