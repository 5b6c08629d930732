// Package evaluate decides whether a completed utterance plausibly matches a
// target phrase.
//
// The evaluator never inspects waveform content: it is duration- and
// amplitude-only by design. There is no speech recognition and no semantic
// matching — the experience must stay playable offline and must not do
// on-device transcription. Accuracy is traded for responsiveness, and false
// accepts are preferred over false rejects: keeping the player motivated
// outweighs data purity for corpus collection.
package evaluate

import (
	"math"
	"time"

	"github.com/carivox/voicerunner/internal/corpus"
)

// Reason classifies an evaluation outcome.
type Reason string

const (
	ReasonAccepted Reason = "ACCEPTED"
	ReasonNoSpeech Reason = "NO_SPEECH"
	ReasonTooShort Reason = "TOO_SHORT"
	ReasonTooLong  Reason = "TOO_LONG"
	ReasonTooQuiet Reason = "TOO_QUIET"
)

// UtteranceResult is the summary of one completed speech interval, produced
// by the recording session when the detector closes an utterance.
type UtteranceResult struct {
	// Duration is the elapsed time between detected onset and offset.
	Duration time.Duration

	// PeakAmplitude is the highest loudness observed, in [0, 1].
	PeakAmplitude float64

	// ClippingDetected is true when any sample clipped during the recording.
	ClippingDetected bool

	// HadSpeech is false when no onset ever crossed the speech threshold
	// before recording stopped.
	HadSpeech bool
}

// Verdict is the evaluator's decision. Accepted is true only when Reason is
// [ReasonAccepted].
type Verdict struct {
	Accepted   bool
	Confidence float64 // in [0, 1]
	Reason     Reason
}

// Duration-ratio gates: utterances shorter than minRatio or longer than
// maxRatio of the expected speaking duration are rejected.
const (
	minRatio = 0.3
	maxRatio = 3.0
)

// minPeakAmplitude is the quietest peak accepted as real speech.
const minPeakAmplitude = 0.02

// strongPeakAmplitude earns the confidence boost for a clearly audible take.
const strongPeakAmplitude = 0.1

// Evaluate scores utt against the expected speaking duration of phrase.
// It is a pure function with no shared state, safe to call from any
// goroutine once both inputs are available.
func Evaluate(phrase corpus.Phrase, utt UtteranceResult) Verdict {
	if !utt.HadSpeech {
		return Verdict{Accepted: false, Confidence: 0, Reason: ReasonNoSpeech}
	}

	expectedMs := phrase.ExpectedSpeechMs()
	ratio := float64(utt.Duration.Milliseconds()) / expectedMs

	// The short gate is inclusive: an utterance at exactly 30% of the
	// expected duration is still rejected.
	if ratio <= minRatio {
		return Verdict{Accepted: false, Confidence: 0.2, Reason: ReasonTooShort}
	}
	if ratio > maxRatio {
		return Verdict{Accepted: false, Confidence: 0.3, Reason: ReasonTooLong}
	}
	if utt.PeakAmplitude < minPeakAmplitude {
		return Verdict{Accepted: false, Confidence: 0.3, Reason: ReasonTooQuiet}
	}

	// Accept. Confidence ramps linearly at the edges of the duration window:
	// 0.5 at ratio 0.3 rising to 1.0 at 0.5, and 1.0 at ratio 2.0 falling to
	// 0.5 at 3.0.
	confidence := 1.0
	if ratio < 0.5 {
		confidence = 0.5 + (ratio-minRatio)*2.5
	} else if ratio > 2.0 {
		confidence = 1.0 - (ratio-2.0)*0.5
	}
	if utt.PeakAmplitude > strongPeakAmplitude {
		confidence = math.Min(confidence+0.1, 1.0)
	}

	return Verdict{Accepted: true, Confidence: confidence, Reason: ReasonAccepted}
}
