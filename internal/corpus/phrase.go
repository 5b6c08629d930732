// Package corpus provides the immutable phrase corpus for Voice Runner:
// loading phrase descriptors from YAML, validating and QA-checking the set,
// and the weighted anti-repetition selector used by the game scheduler.
package corpus

import (
	"errors"
	"fmt"
)

// Category buckets phrases by topic. The EMERGENCY bucket is deliberately
// over-sampled by the selector because emergency vocabulary is the scarcest
// part of the collected corpus.
type Category string

const (
	CategoryNeutral   Category = "NEUTRAL"
	CategoryEmergency Category = "EMERGENCY"
	CategoryLocation  Category = "LOCATION"
	CategoryMedical   Category = "MEDICAL"
	CategoryNumber    Category = "NUMBER"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryNeutral, CategoryEmergency, CategoryLocation, CategoryMedical, CategoryNumber:
		return true
	}
	return false
}

// Register places a phrase on the linguistic continuum from standard speech
// to deep creole.
type Register string

const (
	RegisterAcrolect Register = "ACROLECT"
	RegisterMesolect Register = "MESOLECT"
	RegisterBasilect Register = "BASILECT"
)

// IsValid reports whether r is a recognised register.
func (r Register) IsValid() bool {
	switch r {
	case RegisterAcrolect, RegisterMesolect, RegisterBasilect:
		return true
	}
	return false
}

// Tier bounds for phrase difficulty.
const (
	MinTier = 1
	MaxTier = 5
)

// Phrase is one immutable corpus entry. Phrases are loaded once at startup
// and never mutated; the scheduler and evaluator hold read-only references.
type Phrase struct {
	// ID uniquely identifies the phrase across the corpus.
	ID string `yaml:"id" json:"id"`

	// Text is the prompt shown to the player.
	Text string `yaml:"text" json:"text"`

	// Tier is the difficulty bucket, 1 (simplest) through 5 (hardest).
	Tier int `yaml:"tier" json:"tier"`

	// Category is the topic bucket.
	Category Category `yaml:"category" json:"category"`

	// Register is the linguistic register.
	Register Register `yaml:"register" json:"register"`

	// SyllableCount estimates expected speaking duration at roughly four
	// syllables per second.
	SyllableCount int `yaml:"syllables" json:"syllables"`

	// Calibration marks phrases used by the pre-game calibration flow.
	Calibration bool `yaml:"calibration,omitempty" json:"calibration,omitempty"`
}

// Validate checks a single phrase for structural problems and returns a
// joined error listing every failure found.
func (p *Phrase) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if p.Text == "" {
		errs = append(errs, errors.New("text is required"))
	}
	if p.Tier < MinTier || p.Tier > MaxTier {
		errs = append(errs, fmt.Errorf("tier %d is out of range [%d, %d]", p.Tier, MinTier, MaxTier))
	}
	if !p.Category.IsValid() {
		errs = append(errs, fmt.Errorf("category %q is invalid", p.Category))
	}
	if !p.Register.IsValid() {
		errs = append(errs, fmt.Errorf("register %q is invalid", p.Register))
	}
	if p.SyllableCount <= 0 {
		errs = append(errs, fmt.Errorf("syllables %d must be positive", p.SyllableCount))
	}
	return errors.Join(errs...)
}

// ExpectedSpeechMs returns the expected utterance duration in milliseconds,
// modeling roughly four syllables per second of speech.
func (p *Phrase) ExpectedSpeechMs() float64 {
	return float64(p.SyllableCount) / 4.0 * 1000.0
}
