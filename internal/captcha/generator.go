// Package captcha builds arithmetic challenges rendered through the
// confusable catalog, together with a shuffled set of answer candidates.
package captcha

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/susu3304/gatebot/internal/confusable"
)

const (
	// MaxNumber bounds the operands and the magnitude of every answer.
	MaxNumber = 9
	// MinSeparation is the minimum distance between |answer| and |distractor|.
	MinSeparation = 2
	// DefaultMarkPercent is the probability of a combining mark per glyph.
	DefaultMarkPercent = 25
)

// Operators are the supported arithmetic operators.
const Operators = "+-*/"

// MaxAnswers is the largest answer count the separated pool can always satisfy.
const MaxAnswers = (2*MaxNumber + 1) / MinSeparation

// ConfigurationError reports an answer count the generator cannot satisfy.
type ConfigurationError struct {
	Requested int
	Max       int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("captcha: cannot build %d answers (allowed 1..%d)", e.Requested, e.Max)
}

// Challenge is one generated puzzle.
type Challenge struct {
	A, B    int
	Op      rune
	Answer  int
	Text    string
	Answers []int
}

// Distractors returns the wrong candidates in Answers.
func (c Challenge) Distractors() []int {
	out := make([]int, 0, len(c.Answers))
	for _, a := range c.Answers {
		if a != c.Answer {
			out = append(out, a)
		}
	}
	return out
}

// Generator is safe for concurrent use.
type Generator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	markPercent int
}

type Option func(*Generator)

// WithRand replaces the crypto-seeded source, mostly for tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithMarkPercent sets how often a glyph gets a combining mark (0..100).
func WithMarkPercent(p int) Option {
	return func(g *Generator) { g.markPercent = p }
}

func New(opts ...Option) *Generator {
	g := &Generator{markPercent: DefaultMarkPercent}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		var seed [32]byte
		_, _ = crand.Read(seed[:])
		g.rng = rand.New(rand.NewChaCha8(seed))
	}
	return g
}

// Generate builds a challenge with count answer candidates. The correct
// answer is never the first candidate when count > 1.
func (g *Generator) Generate(count int) (Challenge, error) {
	if count < 1 || count > MaxAnswers {
		return Challenge{}, &ConfigurationError{Requested: count, Max: MaxAnswers}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	op := rune(Operators[g.rng.IntN(len(Operators))])
	var a, b, answer int
	for {
		a = g.rng.IntN(MaxNumber + 1)
		b = g.rng.IntN(MaxNumber + 1)
		if r, ok := solve(a, b, op); ok && abs(r) < MaxNumber {
			answer = r
			break
		}
	}

	return Challenge{
		A:       a,
		B:       b,
		Op:      op,
		Answer:  answer,
		Text:    g.render(strconv.Itoa(a), string(op), strconv.Itoa(b)),
		Answers: g.answers(a, b, answer, count),
	}, nil
}

// solve returns false when the result is not an integer.
func solve(a, b int, op rune) (int, bool) {
	switch op {
	case '+':
		return a + b, true
	case '-':
		return a - b, true
	case '*':
		return a * b, true
	case '/':
		if b == 0 || a%b != 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}

func (g *Generator) render(items ...string) string {
	var sb strings.Builder
	sb.WriteRune(g.pick(confusable.Invisibles))
	for _, item := range items {
		g.writeSpace(&sb)
		sb.WriteRune(g.pick(confusable.Invisibles))
		g.writeConfusable(&sb, item)
	}
	g.writeSpace(&sb)
	sb.WriteRune(g.pick(confusable.Invisibles))
	g.writeConfusable(&sb, string(confusable.Equals))
	g.writeSpace(&sb)
	sb.WriteRune(g.pick(confusable.Invisibles))
	return sb.String()
}

// writeSpace keeps drawing until the run holds a visible space.
func (g *Generator) writeSpace(sb *strings.Builder) {
	for {
		r := g.pick(confusable.Spaces)
		sb.WriteRune(r)
		if !confusable.IsZeroWidth(r) {
			return
		}
	}
}

func (g *Generator) writeConfusable(sb *strings.Builder, item string) {
	for _, c := range item {
		sb.WriteRune(g.pick(confusable.For(c)))
		if g.markPercent > 0 {
			// one mark among ceil(100/p) outcomes, the rest are empty
			outcomes := (100 + g.markPercent - 1) / g.markPercent
			if g.rng.IntN(outcomes) == 0 {
				sb.WriteRune(g.pick(confusable.Marks))
			}
		}
	}
}

func (g *Generator) pick(set []rune) rune {
	return set[g.rng.IntN(len(set))]
}

func (g *Generator) answers(a, b, answer, count int) []int {
	seen := map[int]bool{answer: true}
	var wrong []int
	add := func(n int) {
		if seen[n] || !separated(answer, n) {
			return
		}
		seen[n] = true
		wrong = append(wrong, n)
	}

	if count > 4 {
		// raw digits a scraper would read off the message
		concat, _ := strconv.Atoi(strconv.Itoa(a) + strconv.Itoa(b))
		add(a)
		add(b)
		add(concat)
	}
	for len(wrong) < count-1 {
		add(g.rng.IntN(2*MaxNumber+1) - MaxNumber)
	}

	g.rng.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	if count == 1 {
		return []int{answer}
	}
	pos := 1 + g.rng.IntN(count-1)
	out := make([]int, 0, count)
	out = append(out, wrong[:pos]...)
	out = append(out, answer)
	return append(out, wrong[pos:]...)
}

func separated(answer, n int) bool {
	return abs(abs(answer)-abs(n)) > MinSeparation
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
