package session

import (
	"time"

	"github.com/carivox/voicerunner/internal/corpus"
	"github.com/carivox/voicerunner/internal/game/evaluate"
)

// AttemptRecord is the plain data record emitted for every attempted
// utterance, accepted or rejected. The persistence collaborator receives it
// verbatim together with the encoded audio; how records are stored, queued,
// or uploaded is outside the core.
type AttemptRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestampUtc"`

	PhraseID       string          `json:"phraseId"`
	PhraseText     string          `json:"phraseText"`
	PhraseTier     int             `json:"phraseTier"`
	PhraseCategory corpus.Category `json:"phraseCategory"`
	PhraseRegister corpus.Register `json:"phraseRegister"`

	GameLevel int     `json:"gameLevel"`
	GameSpeed float64 `json:"gameSpeed"`

	// OnsetDelayMs is the time from phrase reveal to detected speech onset.
	// Negative when no onset was detected.
	OnsetDelayMs int64 `json:"timeToSpeechOnsetMs"`

	DurationMs int64           `json:"speechDurationMs"`
	Outcome    evaluate.Reason `json:"outcome"`
	ScoreDelta int             `json:"scoreAwarded"`
	Combo      int             `json:"comboMultiplier"`

	PeakAmplitude float64 `json:"audioPeakAmplitude"`
	Clipping      bool    `json:"audioClippingDetected"`

	// Audio holds the Opus packets of the utterance, in order. Empty when
	// the attempt carried no speech.
	Audio [][]byte `json:"-"`
}

// RunSummary is the final aggregate emitted exactly once at game over.
type RunSummary struct {
	SessionID string        `json:"sessionId"`
	Timestamp time.Time     `json:"timestampUtc"`
	Score     int           `json:"finalScore"`
	MaxLevel  int           `json:"maxLevelReached"`
	Accuracy  float64       `json:"accuracy"`
	MaxCombo  int           `json:"bestCombo"`
	Duration  time.Duration `json:"-"`

	// DurationSeconds mirrors Duration for the wire format.
	DurationSeconds int64 `json:"sessionDurationSeconds"`
}

// Emitter receives attempt records and run summaries. Implementations queue
// or upload them; the core only guarantees the schema and that every
// attempted utterance produces exactly one record.
type Emitter interface {
	EmitAttempt(rec AttemptRecord)
	EmitRunSummary(sum RunSummary)
}
