package captcha

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gatebot/internal/confusable"
)

func seeded(seed uint64) *Generator {
	return New(WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))))
}

func TestGenerateProperties(t *testing.T) {
	g := seeded(1)
	for i := 0; i < 2000; i++ {
		count := 1 + i%MaxAnswers
		c, err := g.Generate(count)
		require.NoError(t, err)

		got, ok := solve(c.A, c.B, c.Op)
		require.True(t, ok, "%d %c %d", c.A, c.Op, c.B)
		assert.Equal(t, got, c.Answer)
		assert.Less(t, abs(c.Answer), MaxNumber)
		if c.Op == '/' {
			assert.NotZero(t, c.B)
			assert.Zero(t, c.A%c.B)
		}

		require.Len(t, c.Answers, count)
		seen := make(map[int]bool)
		correct := 0
		for _, a := range c.Answers {
			assert.False(t, seen[a], "duplicate %d in %v", a, c.Answers)
			seen[a] = true
			if a == c.Answer {
				correct++
			}
		}
		assert.Equal(t, 1, correct)
		if count > 1 {
			assert.NotEqual(t, c.Answer, c.Answers[0])
		}
		for _, d := range c.Distractors() {
			assert.Greater(t, abs(abs(d)-abs(c.Answer)), MinSeparation, "distractor %d for %d", d, c.Answer)
		}
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	g := seeded(7)
	for i := 0; i < 500; i++ {
		c, err := g.Generate(6)
		require.NoError(t, err)
		want := fmt.Sprintf("%d%c%d=", c.A, c.Op, c.B)
		assert.Equal(t, want, confusable.Decode(c.Text))
	}
}

func TestRenderHasVisibleSpaces(t *testing.T) {
	g := seeded(3)
	c, err := g.Generate(6)
	require.NoError(t, err)
	visible := 0
	for _, r := range c.Text {
		for _, s := range confusable.Spaces {
			if r == s && !confusable.IsZeroWidth(r) {
				visible++
			}
		}
	}
	// one run before each operand and the operator, two around the equals sign
	assert.GreaterOrEqual(t, visible, 5)
}

func TestMarkPercent(t *testing.T) {
	hasMark := func(text string) bool {
		for _, m := range confusable.Marks {
			if strings.ContainsRune(text, m) {
				return true
			}
		}
		return false
	}

	never := New(WithMarkPercent(0))
	for i := 0; i < 200; i++ {
		c, err := never.Generate(4)
		require.NoError(t, err)
		assert.False(t, hasMark(c.Text))
	}

	always := New(WithMarkPercent(100))
	c, err := always.Generate(4)
	require.NoError(t, err)
	marks := 0
	for _, r := range c.Text {
		for _, m := range confusable.Marks {
			if r == m {
				marks++
			}
		}
	}
	glyphs := len(fmt.Sprintf("%d%c%d=", c.A, c.Op, c.B))
	assert.Equal(t, glyphs, marks)
}

func TestGenerateCountLimits(t *testing.T) {
	g := New()
	tests := []struct {
		name    string
		count   int
		wantErr bool
	}{
		{"single", 1, false},
		{"maximum", MaxAnswers, false},
		{"zero", 0, true},
		{"too many", MaxAnswers + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := g.Generate(tt.count)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, c.Answers, tt.count)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.count, cfgErr.Requested)
			assert.Equal(t, MaxAnswers, cfgErr.Max)
		})
	}
}

func TestSingleAnswerIsCorrect(t *testing.T) {
	c, err := seeded(11).Generate(1)
	require.NoError(t, err)
	assert.Equal(t, []int{c.Answer}, c.Answers)
}

func TestSolve(t *testing.T) {
	tests := []struct {
		a, b int
		op   rune
		want int
		ok   bool
	}{
		{3, 4, '+', 7, true},
		{3, 4, '-', -1, true},
		{3, 2, '*', 6, true},
		{8, 2, '/', 4, true},
		{7, 2, '/', 0, false},
		{7, 0, '/', 0, false},
		{1, 1, '%', 0, false},
	}
	for _, tt := range tests {
		got, ok := solve(tt.a, tt.b, tt.op)
		assert.Equal(t, tt.ok, ok, "%d %c %d", tt.a, tt.op, tt.b)
		assert.Equal(t, tt.want, got)
	}
}
