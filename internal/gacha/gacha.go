// Package gacha implements the weighted reward draw.
package gacha

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Tier is a reward-probability bucket. Start and End are 1-based inclusive
// indices into the candidate item list.
type Tier struct {
	Label  string
	Weight float64
	Start  int
	End    int
}

// Tiers in draw order. Weights sum to 100.
var Tiers = []Tier{
	{Label: "SSR", Weight: 1, Start: 1, End: 5},
	{Label: "SR", Weight: 5, Start: 6, End: 15},
	{Label: "R", Weight: 15, Start: 16, End: 30},
	{Label: "N", Weight: 79, Start: 31, End: 50},
}

// FallbackItem is returned when there are no candidate items at all.
const FallbackItem = "mystery item"

// Option configures an Engine.
type Option func(*Engine)

// WithRollFunc overrides the tier roll. f must return a value in [0, 100).
func WithRollFunc(f func() float64) Option {
	return func(e *Engine) { e.roll = f }
}

// Engine draws rewards. Safe for concurrent use.
type Engine struct {
	mu   sync.Mutex
	rng  *rand.Rand
	roll func() float64
}

// NewEngine creates an engine using rng for both the tier roll and the item pick.
// A nil rng is seeded from the current time.
func NewEngine(rng *rand.Rand, opts ...Option) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	e := &Engine{rng: rng}
	e.roll = func() float64 { return e.rng.Float64() * 100 }
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Draw rolls a tier and picks an item from its range.
func (e *Engine) Draw(items []string) (string, Tier) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pick(TierFor(e.roll()), items)
}

// DrawWithRoll is Draw with a fixed tier roll.
func (e *Engine) DrawWithRoll(roll float64, items []string) (string, Tier) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pick(TierFor(roll), items)
}

// Intn returns a uniform integer in [0, n) from the engine's source.
func (e *Engine) Intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.rng.Intn(n)
}

// TierFor walks the tiers accumulating weights; the first tier whose
// cumulative weight is >= roll wins. Out of range rolls fall to the last tier.
func TierFor(roll float64) Tier {
	var cumulative float64
	for _, t := range Tiers {
		cumulative += t.Weight
		if roll <= cumulative {
			return t
		}
	}
	return Tiers[len(Tiers)-1]
}

func (e *Engine) pick(t Tier, items []string) (string, Tier) {
	pool := tierSlice(t, items)
	if len(pool) == 0 {
		pool = items
	}
	if len(pool) == 0 {
		return FallbackItem, t
	}
	return pool[e.rng.Intn(len(pool))], t
}

func tierSlice(t Tier, items []string) []string {
	start := t.Start - 1
	end := t.End
	if start < 0 {
		start = 0
	}
	if end > len(items) {
		end = len(items)
	}
	if start >= end {
		return nil
	}
	return items[start:end]
}

// Odds renders the tier table for the odds reply.
func Odds() string {
	var b strings.Builder
	b.WriteString("Gacha odds:")
	for _, t := range Tiers {
		fmt.Fprintf(&b, "\n%s %s (%g%%): items %d-%d", Emoji(t.Label), t.Label, t.Weight, t.Start, t.End)
	}
	return b.String()
}

// Emoji returns the decoration used for a tier label in replies.
func Emoji(label string) string {
	switch label {
	case "SSR":
		return "✨🌟"
	case "SR":
		return "⭐"
	case "R":
		return "💫"
	default:
		return "⚪"
	}
}
