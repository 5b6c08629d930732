package corpus_test

import (
	"strings"
	"testing"

	"github.com/carivox/voicerunner/internal/corpus"
)

const validCorpus = `
phrases:
  - id: p1
    text: "mi deh yah"
    tier: 1
    category: NEUTRAL
    register: BASILECT
    syllables: 4
    calibration: true
  - id: p2
    text: "call di ambulance now"
    tier: 3
    category: EMERGENCY
    register: MESOLECT
    syllables: 7
  - id: p3
    text: "the hospital is on the left"
    tier: 2
    category: LOCATION
    register: ACROLECT
    syllables: 8
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	c, err := corpus.LoadFromReader(strings.NewReader(validCorpus))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	tier13 := c.TierRange(1, 3)
	if len(tier13) != 3 {
		t.Errorf("TierRange(1,3) = %d phrases, want 3", len(tier13))
	}
	tier3 := c.TierRange(3, 3)
	if len(tier3) != 1 || tier3[0].ID != "p2" {
		t.Errorf("TierRange(3,3) = %v, want [p2]", tier3)
	}
}

func TestLoadFromReader_DuplicateID(t *testing.T) {
	t.Parallel()

	doc := `
phrases:
  - {id: p1, text: "one", tier: 1, category: NEUTRAL, register: ACROLECT, syllables: 2}
  - {id: p1, text: "two", tier: 1, category: NEUTRAL, register: ACROLECT, syllables: 2}
`
	if _, err := corpus.LoadFromReader(strings.NewReader(doc)); err == nil {
		t.Fatal("duplicate phrase ID accepted")
	}
}

func TestLoadFromReader_InvalidPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "tier out of range",
			doc:  `{phrases: [{id: p1, text: "x", tier: 9, category: NEUTRAL, register: ACROLECT, syllables: 2}]}`,
		},
		{
			name: "bad category",
			doc:  `{phrases: [{id: p1, text: "x", tier: 1, category: WEATHER, register: ACROLECT, syllables: 2}]}`,
		},
		{
			name: "bad register",
			doc:  `{phrases: [{id: p1, text: "x", tier: 1, category: NEUTRAL, register: SLANG, syllables: 2}]}`,
		},
		{
			name: "zero syllables",
			doc:  `{phrases: [{id: p1, text: "x", tier: 1, category: NEUTRAL, register: ACROLECT, syllables: 0}]}`,
		},
		{
			name: "empty corpus",
			doc:  `{phrases: []}`,
		},
		{
			name: "unknown field",
			doc:  `{phrases: [{id: p1, text: "x", tier: 1, category: NEUTRAL, register: ACROLECT, syllables: 2, difficulty: hard}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := corpus.LoadFromReader(strings.NewReader(tt.doc)); err == nil {
				t.Errorf("invalid corpus accepted")
			}
		})
	}
}

func TestCalibrationPhrases(t *testing.T) {
	t.Parallel()

	c, err := corpus.LoadFromReader(strings.NewReader(validCorpus))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	// One marked calibration phrase; the second slot is filled from tier 1.
	got := c.CalibrationPhrases(2)
	if len(got) != 2 {
		t.Fatalf("CalibrationPhrases(2) = %d phrases, want 2", len(got))
	}
	if got[0].ID != "p1" {
		t.Errorf("first calibration phrase = %s, want p1 (explicitly marked)", got[0].ID)
	}

	// Asking for more than the corpus holds returns what exists.
	if got := c.CalibrationPhrases(10); len(got) == 0 {
		t.Error("CalibrationPhrases(10) returned nothing")
	}
}

func TestExpectedSpeechMs(t *testing.T) {
	t.Parallel()

	p := corpus.Phrase{SyllableCount: 4}
	if got := p.ExpectedSpeechMs(); got != 1000 {
		t.Errorf("ExpectedSpeechMs() = %f, want 1000 for 4 syllables", got)
	}
}
