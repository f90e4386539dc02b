// Package sentiment turns raw feedback text into a bounded numeric sentiment
// value using a rule-based pass over the lexicon. Scoring is deterministic
// and side-effect free so the pipeline stays replayable.
package sentiment

import (
	"strings"

	"github.com/driverpulse/sentiment-server/internal/lexicon"
	"go.uber.org/zap"
)

const (
	defaultNegationWindow    = 2
	defaultNegationDampening = 0.5
	defaultNeutralRatio      = 0.4
	defaultMinValue          = -5.0
	defaultMaxValue          = 5.0

	punctuationCutset = `.,!?;:()[]{}"'-`
)

// Result is the outcome of scoring one text. MatchedTerms lists the lexicon
// terms that contributed, in order of appearance, for explainability.
type Result struct {
	Value        float64
	MatchedTerms []string
}

// Analyzer scores free text against a lexicon. Safe for concurrent use.
type Analyzer struct {
	lex               *lexicon.Lexicon
	negationWindow    int
	negationDampening float64
	neutralRatio      float64
	minValue          float64
	maxValue          float64
	logger            *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithNegationWindow sets how many tokens before a polarity token are
// inspected for a negation word.
func WithNegationWindow(window int) Option {
	return func(a *Analyzer) { a.negationWindow = window }
}

// WithNegationDampening sets the magnitude factor applied when a polarity
// token is negated. "not excellent" should land near neutral rather than
// mirror "terrible".
func WithNegationDampening(factor float64) Option {
	return func(a *Analyzer) { a.negationDampening = factor }
}

// WithValueBounds clamps the summed score to [min, max].
func WithValueBounds(minV, maxV float64) Option {
	return func(a *Analyzer) {
		a.minValue = minV
		a.maxValue = maxV
	}
}

// WithNeutralRatio sets the fraction of neutral filler tokens above which a
// text is scored as exactly neutral.
func WithNeutralRatio(ratio float64) Option {
	return func(a *Analyzer) { a.neutralRatio = ratio }
}

// New creates an Analyzer over the given lexicon.
func New(lex *lexicon.Lexicon, logger *zap.Logger, opts ...Option) *Analyzer {
	if lex == nil {
		panic("lexicon must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		lex:               lex,
		negationWindow:    defaultNegationWindow,
		negationDampening: defaultNegationDampening,
		neutralRatio:      defaultNeutralRatio,
		minValue:          defaultMinValue,
		maxValue:          defaultMaxValue,
		logger:            logger.Named("sentiment"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scores text. Empty or whitespace-only input yields a neutral zero
// result; it is never an error.
func (a *Analyzer) Analyze(text string) Result {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		a.logger.Debug("empty text after tokenization, scoring neutral")
		return Result{Value: 0, MatchedTerms: nil}
	}

	total, matched := a.matchTokens(tokens)

	if a.isNeutralText(total, tokens) {
		return Result{Value: 0, MatchedTerms: matched}
	}

	if total < a.minValue {
		total = a.minValue
	} else if total > a.maxValue {
		total = a.maxValue
	}
	return Result{Value: total, MatchedTerms: matched}
}

// tokenize lowercases and splits text, stripping surrounding punctuation
// from each token.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Trim(f, punctuationCutset)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func (a *Analyzer) matchTokens(tokens []string) (float64, []string) {
	var total float64
	var matched []string

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		// An intensifier or diminisher immediately before a polarity token
		// scales its magnitude and consumes the modifier position.
		intensity := 1.0
		if m, ok := a.lex.Intensifier(token); ok {
			intensity = m
			i++
			if i >= len(tokens) {
				break
			}
			token = tokens[i]
		} else if m, ok := a.lex.Diminisher(token); ok {
			intensity = m
			i++
			if i >= len(tokens) {
				break
			}
			token = tokens[i]
		}

		term, weight, ok := a.lex.Match(token)
		if !ok {
			continue
		}

		contribution := weight * intensity
		if a.isNegated(tokens, i) {
			contribution = -contribution * a.negationDampening
		}

		total += contribution
		matched = append(matched, term)
	}

	return total, matched
}

// isNegated reports whether any token in the configured window before
// position i is a negation word.
func (a *Analyzer) isNegated(tokens []string, i int) bool {
	for back := 1; back <= a.negationWindow; back++ {
		j := i - back
		if j < 0 {
			break
		}
		if a.lex.IsNegation(tokens[j]) {
			return true
		}
	}
	return false
}

// isNeutralText applies the neutral-text heuristics: texts dominated by
// factual filler words, and short texts whose total stays under a length
// dependent threshold, score exactly zero.
func (a *Analyzer) isNeutralText(total float64, tokens []string) bool {
	neutralCount := 0
	for _, t := range tokens {
		if a.lex.IsNeutralIndicator(t) {
			neutralCount++
		}
	}
	if float64(neutralCount)/float64(len(tokens)) > a.neutralRatio {
		return true
	}

	var threshold float64
	switch {
	case len(tokens) <= 3:
		threshold = 0.3
	case len(tokens) <= 10:
		threshold = 0.5
	default:
		threshold = 0.7
	}

	abs := total
	if abs < 0 {
		abs = -abs
	}
	return abs <= threshold
}
