// Package search provides a small, deterministic, concurrency-safe in-memory
// relevance index over listing text. It is built per query from the rows that
// already passed the SQL filters, then ranks them for a free-text query.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization with accent folding and optional stop words
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic scoring and ordering (stable for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set, score = |Q ∩ D| / |Q ∪ D|, where a query token also
// matches any document token it is a prefix of ("cam" matches "camera").
// Documents whose key text (title and category) contains the whole query as
// a substring always match and receive a fixed boost on top.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SubstringBoost is added to the score of documents whose key text contains
// the query verbatim.
const SubstringBoost = 0.5

// minPrefixRunes is the shortest query token that may match by prefix.
const minPrefixRunes = 3

// Doc is one searchable record.
type Doc struct {
	ID string
	// Key is matched by substring (title and category).
	Key string
	// Text is tokenized for similarity (title, category and description).
	Text string
}

// Result is a ranked document with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{}
}

// WithStopwords drops the given words from both documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many documents are indexed. Documents past the cap are
// dropped in input order.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// EnglishStopwords is a short list of words that carry no meaning in listing
// searches.
var EnglishStopwords = []string{
	"a", "an", "and", "the", "for", "of", "to", "in", "on", "with", "my", "your", "is", "at", "by", "or",
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	key    string
	tokens map[string]struct{}
	tLen   int
	order  int
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex builds an Index over docs. Document order breaks score ties, so
// callers pass documents in their preferred fallback order (e.g. newest first).
func NewIndex(docs []Doc, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(docs, cfg)
}

func buildIndex(in []Doc, cfg config) *index {
	docs := make([]doc, 0, len(in))
	for i, d := range in {
		t := strings.TrimSpace(normalizeWhitespace(d.Text))
		toks := tokenize(t, cfg.stopwords)
		key := fold(normalizeWhitespace(strings.TrimSpace(d.Key)))
		if len(toks) == 0 && key == "" {
			continue
		}
		docs = append(docs, doc{id: d.ID, key: key, tokens: toks, tLen: len(toks), order: i})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching documents. k <= 0 returns every match.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qKey := fold(normalizeWhitespace(strings.TrimSpace(q)))
	qTokens := tokenize(q, i.cfg.stopwords)
	qLen := len(qTokens)

	type scored struct {
		id    string
		score float64
		order int
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		var score float64
		if qLen > 0 {
			if over := overlap(qTokens, d.tokens); over > 0 {
				score = float64(over) / float64(qLen+d.tLen-over)
			}
		}
		if qKey != "" && d.key != "" && strings.Contains(d.key, qKey) {
			score += SubstringBoost
		}
		if score <= 0 {
			continue
		}
		buf = append(buf, scored{id: d.id, score: score, order: d.order})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return buf[a].order < buf[b].order
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = Result{ID: buf[j].id, Score: buf[j].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// fold lower-cases s and strips combining marks so "Café" and "cafe" compare
// equal. Transformers carry state, so a new chain is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

// overlap counts query tokens that match a document token exactly or, for
// tokens of at least minPrefixRunes, as a prefix.
func overlap(q, d map[string]struct{}) int {
	if len(q) == 0 || len(d) == 0 {
		return 0
	}
	n := 0
	for t := range q {
		if _, ok := d[t]; ok {
			n++
			continue
		}
		if utf8.RuneCountInString(t) < minPrefixRunes {
			continue
		}
		for dt := range d {
			if strings.HasPrefix(dt, t) {
				n++
				break
			}
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
