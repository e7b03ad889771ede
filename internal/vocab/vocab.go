// Package vocab fixes misheard proper nouns in finished transcripts.
//
// A [Corrector] holds a list of terms (people, product names, jargon). Every
// run of up to N adjacent words of a transcript, where N is one more than the
// longest term's word count, is compared against the terms in two stages:
//
//  1. The first word must start with the same sound as the term, judged by
//     the primary Double Metaphone code.
//  2. The Jaro-Winkler similarity of the run and the term, compared both with
//     and without spaces, must reach the phonetic threshold when any word
//     shares a Double Metaphone code with the term, and the stricter fuzzy
//     threshold otherwise.
//
// Runs whose letter count differs from the term's by more than a quarter
// (at least two letters) are never replaced.
// Only the matched words are replaced; line breaks, punctuation and speaker
// labels are left untouched.
package vocab

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.92
)

// wordPattern matches a word, keeping inner apostrophes.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// Correction records one replacement.
type Correction struct {
	Original  string
	Corrected string
	Score     float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for runs that
// share a phonetic code with the term. Default: 0.85.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for runs without
// phonetic overlap. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// Corrector rewrites near-misses of known terms. It is read-only after
// construction and safe for concurrent use. A nil *Corrector leaves text
// unchanged.
type Corrector struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// term is a vocabulary entry with its comparison data precomputed.
type term struct {
	text string
	window
}

// window is a lower-cased run of words with its comparison data.
type window struct {
	full    string
	concat  string
	letters int
	codes   map[string]struct{}
	anchor  map[byte]struct{} // first sound of the first word
}

// New returns a Corrector for terms. Blank and duplicate terms are ignored.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	seen := make(map[string]bool, len(terms))
	for _, raw := range terms {
		tokens := strings.Fields(strings.ToLower(raw))
		if len(tokens) == 0 {
			continue
		}
		w := newWindow(tokens)
		if seen[w.full] {
			continue
		}
		seen[w.full] = true
		c.terms = append(c.terms, term{text: strings.Join(strings.Fields(raw), " "), window: w})
		c.maxWords = max(c.maxWords, len(tokens)+1)
	}
	return c
}

// Len returns the number of distinct terms.
func (c *Corrector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.terms)
}

// Match returns the term that phrase most likely stands for. When no term
// qualifies it returns phrase unchanged, a zero score and false. A phrase
// equal to a term apart from letter case does not match.
func (c *Corrector) Match(phrase string) (string, float64, bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if c == nil || len(tokens) == 0 {
		return phrase, 0, false
	}
	w := newWindow(tokens)
	var (
		best  *term
		score float64
	)
	for i := range c.terms {
		t := &c.terms[i]
		if w.full == t.full {
			return phrase, 0, false
		}
		if s, ok := c.score(w, t); ok && s > score {
			best, score = t, s
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.text, score, true
}

// Correct returns text with near-misses of the terms replaced, and the list
// of replacements in order of appearance.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if c.Len() == 0 {
		return text, nil
	}
	spans := wordPattern.FindAllStringIndex(text, -1)

	var (
		b           strings.Builder
		corrections []Correction
		last        int
	)
	for i := 0; i < len(spans); {
		n, t, score := c.best(text, spans[i:])
		if n == 0 {
			i++
			continue
		}
		if t != nil {
			start, end := spans[i][0], spans[i+n-1][1]
			b.WriteString(text[last:start])
			b.WriteString(t.text)
			last = end
			corrections = append(corrections, Correction{
				Original:  text[start:end],
				Corrected: t.text,
				Score:     score,
			})
		}
		i += n
	}
	if len(corrections) == 0 {
		return text, nil
	}
	b.WriteString(text[last:])
	return b.String(), corrections
}

// best finds the highest scoring run starting at spans[0]. It returns the
// number of words consumed and the winning term; a nil term with n > 0 means
// the run already spells a term exactly.
func (c *Corrector) best(text string, spans [][]int) (n int, best *term, score float64) {
	tokens := make([]string, 0, c.maxWords)
	for k := 0; k < len(spans) && k < c.maxWords; k++ {
		if k > 0 && !joinable(text[spans[k-1][1]:spans[k][0]]) {
			break
		}
		tokens = append(tokens, strings.ToLower(text[spans[k][0]:spans[k][1]]))
		w := newWindow(tokens)
		for i := range c.terms {
			t := &c.terms[i]
			if w.full == t.full {
				return k + 1, nil, 1
			}
			if s, ok := c.score(w, t); ok && s > score {
				n, best, score = k+1, t, s
			}
		}
	}
	return n, best, score
}

// score compares w with t and reports whether the similarity is high enough.
func (c *Corrector) score(w window, t *term) (float64, bool) {
	if !overlaps(w.anchor, t.anchor) {
		return 0, false
	}
	if diff := w.letters - t.letters; diff > slack(t.letters) || -diff > slack(t.letters) {
		return 0, false
	}
	s := matchr.JaroWinkler(w.full, t.full, false)
	if w.concat != w.full || t.concat != t.full {
		s = max(s, matchr.JaroWinkler(w.concat, t.concat, false))
	}
	if overlaps(w.codes, t.codes) {
		return s, s >= c.phoneticThreshold
	}
	return s, s >= c.fuzzyThreshold
}

// slack is the tolerated letter count difference for a term of n letters.
func slack(n int) int {
	return max(2, n/4)
}

// joinable reports whether two words separated by sep may form one run.
func joinable(sep string) bool {
	return strings.Trim(sep, " \t") == ""
}

func newWindow(tokens []string) window {
	w := window{
		full:   strings.Join(tokens, " "),
		concat: strings.Join(tokens, ""),
		codes:  make(map[string]struct{}, len(tokens)*2),
		anchor: make(map[byte]struct{}, 2),
	}
	w.letters = utf8.RuneCountInString(w.concat)
	for i, tok := range tokens {
		primary, secondary := matchr.DoubleMetaphone(tok)
		if primary != "" {
			w.codes[primary] = struct{}{}
			if i == 0 {
				w.anchor[primary[0]] = struct{}{}
			}
		}
		if secondary != "" {
			w.codes[secondary] = struct{}{}
		}
	}
	if len(w.anchor) == 0 {
		// No consonant sound, e.g. digits: anchor on the first byte.
		w.anchor[tokens[0][0]] = struct{}{}
	}
	return w
}

func overlaps[K comparable](a, b map[K]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
