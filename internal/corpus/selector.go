package corpus

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
)

// historySize bounds the anti-repetition window: the last historySize
// selected phrase IDs are excluded from the candidate set.
const historySize = 10

// baseCategoryWeight is the floor added to every category weight so that
// even a heavily used category keeps a non-zero chance of selection.
const baseCategoryWeight = 0.2

// emergencyBoost is the fixed multiplier applied to EMERGENCY phrases on top
// of the inverse-usage weighting.
const emergencyBoost = 1.5

// tierRange is an inclusive [Lo, Hi] phrase-tier window.
type tierRange struct {
	Lo, Hi int
}

// levelTiers maps game level to the tier window phrases are drawn from.
// Levels beyond the table use the last entry.
var levelTiers = []tierRange{
	1: {1, 1},
	2: {1, 2},
	3: {2, 3},
	4: {2, 4},
	5: {3, 5},
}

// tiersForLevel returns the tier window for a game level.
func tiersForLevel(level int) tierRange {
	if level < 1 {
		level = 1
	}
	if level >= len(levelTiers) {
		return levelTiers[len(levelTiers)-1]
	}
	return levelTiers[level]
}

// Selector draws phrases from a [Corpus] with anti-repetition and inverse
// category-usage weighting. Categories a player has already recorded a lot
// of are down-weighted so the collected data spreads across the corpus; the
// EMERGENCY category carries a fixed boost on top.
//
// A Selector is owned by a single game session and is not safe for
// concurrent use.
type Selector struct {
	corpus *Corpus
	rng    *rand.Rand

	history   []string // most recent last, bounded by historySize
	usage     map[Category]int
	totalUses int
}

// SelectorOption configures a [Selector].
type SelectorOption func(*Selector)

// WithRand injects the random source. Tests use a seeded source for
// reproducible draws.
func WithRand(rng *rand.Rand) SelectorOption {
	return func(s *Selector) { s.rng = rng }
}

// NewSelector creates a Selector over c.
func NewSelector(c *Corpus, opts ...SelectorOption) *Selector {
	s := &Selector{
		corpus: c,
		usage:  make(map[Category]int),
	}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Select draws one phrase for the given game level. The recently selected
// IDs are excluded; when that leaves no candidates (tier exhausted), the
// history is cleared and the draw is retried once unfiltered.
func (s *Selector) Select(level int) (Phrase, error) {
	tiers := tiersForLevel(level)
	pool := s.corpus.TierRange(tiers.Lo, tiers.Hi)
	if len(pool) == 0 {
		return Phrase{}, fmt.Errorf("corpus: no phrases in tiers [%d, %d]", tiers.Lo, tiers.Hi)
	}

	candidates := s.excludeRecent(pool)
	if len(candidates) == 0 {
		slog.Debug("corpus: tier pool exhausted, clearing selection history",
			"level", level,
			"tier_lo", tiers.Lo,
			"tier_hi", tiers.Hi,
		)
		s.history = s.history[:0]
		candidates = pool
	}

	picked := s.weightedDraw(candidates)
	s.record(picked)
	return picked, nil
}

// excludeRecent filters out phrases whose ID is in the anti-repetition
// history.
func (s *Selector) excludeRecent(pool []Phrase) []Phrase {
	out := make([]Phrase, 0, len(pool))
	for _, p := range pool {
		if !slices.Contains(s.history, p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// weightedDraw performs a single weighted-random draw over candidates.
// Candidates must be non-empty. If floating-point rounding leaves the
// cumulative weight short of the drawn value, the last candidate wins — an
// implementation-defined tie-break, not a bug.
func (s *Selector) weightedDraw(candidates []Phrase) Phrase {
	weights := make([]float64, len(candidates))
	var total float64
	for i, p := range candidates {
		w := s.categoryWeight(p.Category)
		weights[i] = w
		total += w
	}

	r := s.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// categoryWeight computes the selection weight for a category: inverse to
// its share of past selections, floored by baseCategoryWeight, with the
// EMERGENCY boost applied last.
func (s *Selector) categoryWeight(cat Category) float64 {
	var share float64
	if s.totalUses > 0 {
		share = float64(s.usage[cat]) / float64(s.totalUses)
	}
	w := 1 - share + baseCategoryWeight
	if cat == CategoryEmergency {
		w *= emergencyBoost
	}
	return w
}

// record updates the anti-repetition history and category usage counters
// after a draw.
func (s *Selector) record(p Phrase) {
	s.history = append(s.history, p.ID)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.usage[p.Category]++
	s.totalUses++
}
