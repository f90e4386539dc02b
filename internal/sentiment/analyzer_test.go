package sentiment

import (
	"testing"

	"github.com/driverpulse/sentiment-server/internal/lexicon"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	return New(lexicon.Default(), zap.NewNop(), opts...)
}

func TestNew(t *testing.T) {
	t.Run("nil lexicon panics", func(t *testing.T) {
		assert.Panics(t, func() {
			New(nil, zap.NewNop())
		})
	})

	t.Run("nil logger gets default", func(t *testing.T) {
		a := New(lexicon.Default(), nil)
		assert.NotNil(t, a)
	})
}

func TestAnalyze(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name    string
		text    string
		want    float64
		matched []string
	}{
		{
			name: "empty text",
			text: "",
			want: 0,
		},
		{
			name: "punctuation only",
			text: " ... !!! ",
			want: 0,
		},
		{
			name:    "single positive term",
			text:    "excellent service",
			want:    2,
			matched: []string{"excellent"},
		},
		{
			name:    "single negative term",
			text:    "rude behavior",
			want:    -2,
			matched: []string{"rude"},
		},
		{
			name:    "negated positive dampens and flips",
			text:    "not good",
			want:    -0.5,
			matched: []string{"good"},
		},
		{
			name:    "negated negative dampens and flips",
			text:    "not terrible",
			want:    1.5,
			matched: []string{"terrible"},
		},
		{
			name:    "intensifier scales magnitude",
			text:    "very good",
			want:    1.5,
			matched: []string{"good"},
		},
		{
			name:    "strong intensifier on negative",
			text:    "extremely rude driver",
			want:    -4,
			matched: []string{"rude"},
		},
		{
			name:    "negation reaches past an intensifier",
			text:    "not very good",
			want:    -0.75,
			matched: []string{"good"},
		},
		{
			name:    "diminished negative rounds to neutral in short text",
			text:    "hardly late",
			want:    0,
			matched: []string{"late"},
		},
		{
			name:    "mixed polarity accumulates",
			text:    "friendly driver but terrible car",
			want:    -2,
			matched: []string{"friendly", "terrible"},
		},
		{
			name:    "clamped at the lower bound",
			text:    "terrible awful horrible worst",
			want:    -5,
			matched: []string{"terrible", "awful", "horrible", "worst"},
		},
		{
			name:    "neutral filler dominates",
			text:    "ride was good trip",
			want:    0,
			matched: []string{"good"},
		},
		{
			name:    "mid length text under threshold is neutral",
			text:    "the driver took a slightly slow route",
			want:    0,
			matched: []string{"slow"},
		},
		{
			name:    "typo resolves through fuzzy matching",
			text:    "excelent driver",
			want:    2,
			matched: []string{"excellent"},
		},
		{
			name:    "punctuation stripped before lookup",
			text:    "Excellent!",
			want:    2,
			matched: []string{"excellent"},
		},
		{
			name: "dangling modifier at end of text",
			text: "very",
			want: 0,
		},
		{
			name: "unknown words only",
			text: "quux flerb zorp blagh",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.text)
			assert.InDelta(t, tt.want, got.Value, 1e-9)
			assert.Equal(t, tt.matched, got.MatchedTerms)
		})
	}
}

func TestAnalyzeDeterminism(t *testing.T) {
	a := newTestAnalyzer(t)
	const text = "the driver was not very friendly but the car was excelent and clean"

	first := a.Analyze(text)
	for i := 0; i < 100; i++ {
		got := a.Analyze(text)
		assert.Equal(t, first, got)
	}
}

func TestAnalyzeOptions(t *testing.T) {
	t.Run("custom negation window", func(t *testing.T) {
		a := newTestAnalyzer(t, WithNegationWindow(1))
		// "not" is two tokens before "good", outside the window of one
		got := a.Analyze("not very good")
		assert.InDelta(t, 1.5, got.Value, 1e-9)
	})

	t.Run("custom dampening", func(t *testing.T) {
		a := newTestAnalyzer(t, WithNegationDampening(1.0))
		got := a.Analyze("not good")
		assert.InDelta(t, -1.0, got.Value, 1e-9)
	})

	t.Run("tight bounds clamp", func(t *testing.T) {
		a := newTestAnalyzer(t, WithValueBounds(-2, 2))
		got := a.Analyze("outstanding perfect exceptional flawless")
		assert.InDelta(t, 2.0, got.Value, 1e-9)
	})

	t.Run("neutral ratio disabled", func(t *testing.T) {
		a := newTestAnalyzer(t, WithNeutralRatio(1.0))
		got := a.Analyze("ride was good trip")
		assert.InDelta(t, 1.0, got.Value, 1e-9)
	})
}
