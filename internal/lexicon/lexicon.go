// Package lexicon provides the static term-to-polarity tables used by the
// sentiment analyzer, including negation, intensifier and diminisher sets and
// a bounded edit-distance fuzzy lookup for typos.
package lexicon

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

const (
	defaultFuzzyMaxDistance = 1
	defaultFuzzyMinLength   = 4
)

// Lexicon is an immutable set of scoring tables loaded once at startup.
// All lookups are safe for concurrent use.
type Lexicon struct {
	terms        map[string]float64
	negations    map[string]struct{}
	intensifiers map[string]float64
	diminishers  map[string]float64
	neutralWords map[string]struct{}

	fuzzyMaxDistance int
	fuzzyMinLength   int

	// sorted term list for deterministic fuzzy tie-breaking
	sortedTerms []string

	fuzzyMu    sync.RWMutex
	fuzzyCache map[string]string
}

// Option configures a Lexicon before its tables are frozen.
type Option func(*Lexicon)

// WithFuzzyTolerance sets the maximum edit distance and the minimum token
// length for fuzzy matching. Distance 0 disables fuzzy lookups.
func WithFuzzyTolerance(maxDistance, minLength int) Option {
	return func(l *Lexicon) {
		l.fuzzyMaxDistance = maxDistance
		l.fuzzyMinLength = minLength
	}
}

// New builds a Lexicon from explicit tables. The maps are copied so callers
// cannot mutate the lexicon afterwards.
func New(terms map[string]float64, negations []string, intensifiers, diminishers map[string]float64, opts ...Option) *Lexicon {
	l := &Lexicon{
		terms:            make(map[string]float64, len(terms)),
		negations:        make(map[string]struct{}, len(negations)),
		intensifiers:     make(map[string]float64, len(intensifiers)),
		diminishers:      make(map[string]float64, len(diminishers)),
		neutralWords:     make(map[string]struct{}, len(defaultNeutralWords)),
		fuzzyMaxDistance: defaultFuzzyMaxDistance,
		fuzzyMinLength:   defaultFuzzyMinLength,
		fuzzyCache:       make(map[string]string),
	}
	for term, weight := range terms {
		l.terms[term] = weight
	}
	for _, n := range negations {
		l.negations[n] = struct{}{}
	}
	for w, m := range intensifiers {
		l.intensifiers[w] = m
	}
	for w, m := range diminishers {
		l.diminishers[w] = m
	}
	for _, w := range defaultNeutralWords {
		l.neutralWords[w] = struct{}{}
	}

	for _, opt := range opts {
		opt(l)
	}

	l.sortedTerms = make([]string, 0, len(l.terms))
	for term := range l.terms {
		l.sortedTerms = append(l.sortedTerms, term)
	}
	sort.Strings(l.sortedTerms)

	return l
}

// Default returns the built-in curated lexicon.
func Default(opts ...Option) *Lexicon {
	return New(defaultTerms, defaultNegations, defaultIntensifiers, defaultDiminishers, opts...)
}

// fileTables mirrors the JSON layout of an external lexicon file.
type fileTables struct {
	Terms        map[string]float64 `json:"terms"`
	Negations    []string           `json:"negations"`
	Intensifiers map[string]float64 `json:"intensifiers"`
	Diminishers  map[string]float64 `json:"diminishers"`
}

// LoadFile reads lexicon tables from a JSON file. Missing sections fall back
// to the built-in defaults so operators can override only the term table.
func LoadFile(path string, opts ...Option) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file: %w", err)
	}
	var ft fileTables
	if err := json.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("parse lexicon file %s: %w", path, err)
	}
	if len(ft.Terms) == 0 {
		ft.Terms = defaultTerms
	}
	if len(ft.Negations) == 0 {
		ft.Negations = defaultNegations
	}
	if len(ft.Intensifiers) == 0 {
		ft.Intensifiers = defaultIntensifiers
	}
	if len(ft.Diminishers) == 0 {
		ft.Diminishers = defaultDiminishers
	}
	return New(ft.Terms, ft.Negations, ft.Intensifiers, ft.Diminishers, opts...), nil
}

// Weight returns the polarity weight for an exact term.
func (l *Lexicon) Weight(token string) (float64, bool) {
	w, ok := l.terms[token]
	return w, ok
}

// IsNegation reports whether token is a negation word.
func (l *Lexicon) IsNegation(token string) bool {
	_, ok := l.negations[token]
	return ok
}

// Intensifier returns the magnitude multiplier for an intensifier token.
func (l *Lexicon) Intensifier(token string) (float64, bool) {
	m, ok := l.intensifiers[token]
	return m, ok
}

// Diminisher returns the magnitude multiplier for a diminisher token.
func (l *Lexicon) Diminisher(token string) (float64, bool) {
	m, ok := l.diminishers[token]
	return m, ok
}

// IsNeutralIndicator reports whether token is a neutral filler word.
func (l *Lexicon) IsNeutralIndicator(token string) bool {
	_, ok := l.neutralWords[token]
	return ok
}

// MaxWeight returns the largest absolute term weight in the lexicon.
func (l *Lexicon) MaxWeight() float64 {
	var maxW float64
	for _, w := range l.terms {
		if w < 0 {
			w = -w
		}
		if w > maxW {
			maxW = w
		}
	}
	return maxW
}

// Match resolves a token to a lexicon term, trying an exact lookup first and
// falling back to a bounded edit-distance search. The fuzzy search is
// deterministic: the closest term wins, ties break lexicographically.
func (l *Lexicon) Match(token string) (term string, weight float64, ok bool) {
	if w, exact := l.terms[token]; exact {
		return token, w, true
	}
	if l.fuzzyMaxDistance <= 0 || len(token) < l.fuzzyMinLength {
		return "", 0, false
	}

	l.fuzzyMu.RLock()
	cached, hit := l.fuzzyCache[token]
	l.fuzzyMu.RUnlock()
	if hit {
		if cached == "" {
			return "", 0, false
		}
		return cached, l.terms[cached], true
	}

	best := ""
	bestDist := l.fuzzyMaxDistance + 1
	for _, candidate := range l.sortedTerms {
		diff := len(candidate) - len(token)
		if diff < 0 {
			diff = -diff
		}
		if diff > l.fuzzyMaxDistance {
			continue
		}
		d := boundedLevenshtein(token, candidate, l.fuzzyMaxDistance)
		if d >= 0 && d < bestDist {
			best = candidate
			bestDist = d
			if d == 1 {
				// cannot do better: exact matches were already handled
				break
			}
		}
	}

	l.fuzzyMu.Lock()
	l.fuzzyCache[token] = best
	l.fuzzyMu.Unlock()

	if best == "" {
		return "", 0, false
	}
	return best, l.terms[best], true
}

// boundedLevenshtein returns the edit distance between a and b, or -1 when it
// exceeds maxDist. Uses the two-row dynamic programming form with an early
// exit once a full row is above the bound.
func boundedLevenshtein(a, b string, maxDist int) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la == 0 {
		if lb <= maxDist {
			return lb
		}
		return -1
	}
	if lb == 0 {
		if la <= maxDist {
			return la
		}
		return -1
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
			if m < rowMin {
				rowMin = m
			}
		}
		if rowMin > maxDist {
			return -1
		}
		prev, curr = curr, prev
	}

	if prev[lb] > maxDist {
		return -1
	}
	return prev[lb]
}
