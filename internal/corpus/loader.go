package corpus

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"
)

// dupSimilarityThreshold is the Jaro-Winkler score above which two phrase
// texts are reported as near-duplicates during corpus QA.
const dupSimilarityThreshold = 0.93

// corpusFile is the YAML document layout of a corpus file.
type corpusFile struct {
	Phrases []Phrase `yaml:"phrases"`
}

// Corpus is the immutable set of phrases loaded at startup.
type Corpus struct {
	phrases     []Phrase
	calibration []Phrase
	byTier      map[int][]Phrase
}

// Load reads the YAML corpus file at path and returns a validated [Corpus].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("corpus: parse %q: %w", path, err)
	}
	return c, nil
}

// LoadFromReader decodes a YAML corpus from r, validates every phrase, and
// runs the near-duplicate QA pass. Useful in tests where corpora are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Corpus, error) {
	var doc corpusFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("corpus: decode yaml: %w", err)
	}
	if len(doc.Phrases) == 0 {
		return nil, fmt.Errorf("corpus: no phrases defined")
	}

	seen := make(map[string]int, len(doc.Phrases))
	c := &Corpus{
		phrases: doc.Phrases,
		byTier:  make(map[int][]Phrase),
	}
	for i := range doc.Phrases {
		p := &doc.Phrases[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("corpus: phrases[%d] (%s): %w", i, p.ID, err)
		}
		if prev, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("corpus: phrases[%d].id %q is a duplicate of phrases[%d]", i, p.ID, prev)
		}
		seen[p.ID] = i

		c.byTier[p.Tier] = append(c.byTier[p.Tier], *p)
		if p.Calibration {
			c.calibration = append(c.calibration, *p)
		}
	}

	warnNearDuplicates(doc.Phrases)
	return c, nil
}

// Len returns the number of phrases in the corpus.
func (c *Corpus) Len() int {
	return len(c.phrases)
}

// Phrases returns all phrases. The returned slice is shared; callers must
// not mutate it.
func (c *Corpus) Phrases() []Phrase {
	return c.phrases
}

// TierRange returns every phrase whose tier is within [lo, hi] inclusive.
func (c *Corpus) TierRange(lo, hi int) []Phrase {
	var out []Phrase
	for tier := lo; tier <= hi; tier++ {
		out = append(out, c.byTier[tier]...)
	}
	return out
}

// CalibrationPhrases returns up to count phrases marked for calibration.
// When fewer are marked, the remainder is filled from tier-1 phrases so the
// calibration flow always has material to show.
func (c *Corpus) CalibrationPhrases(count int) []Phrase {
	out := make([]Phrase, 0, count)
	out = append(out, c.calibration...)
	if len(out) < count {
		for _, p := range c.byTier[MinTier] {
			if len(out) >= count {
				break
			}
			if !p.Calibration {
				out = append(out, p)
			}
		}
	}
	if len(out) > count {
		out = out[:count]
	}
	return out
}

// warnNearDuplicates logs a warning for each pair of phrases whose texts are
// nearly identical. Near-duplicates dilute the collected corpus without the
// contributor noticing; this is a QA aid, never a load failure.
func warnNearDuplicates(phrases []Phrase) {
	for i := range phrases {
		for j := i + 1; j < len(phrases); j++ {
			a := strings.ToLower(phrases[i].Text)
			b := strings.ToLower(phrases[j].Text)
			if score := matchr.JaroWinkler(a, b, false); score > dupSimilarityThreshold {
				slog.Warn("corpus: near-duplicate phrase texts",
					"id_a", phrases[i].ID,
					"id_b", phrases[j].ID,
					"similarity", score,
				)
			}
		}
	}
}
