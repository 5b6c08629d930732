// Package game implements the real-time obstacle/phrase scheduler for Voice
// Runner: the fixed-timestep run loop that moves obstacles, reveals target
// phrases, detects collisions, and applies accepted/rejected utterance
// outcomes to the run state.
//
// The scheduler is advanced by the host's frame callback via
// [Scheduler.Advance] with the measured delta since the previous frame.
// Deltas are clamped so a tab suspend cannot teleport obstacles across the
// track. All game-state mutation happens inside the scheduler; other
// components only observe it through [Hooks] and read-only snapshots.
package game

import (
	"time"

	"github.com/carivox/voicerunner/internal/corpus"
)

// Phase is the run lifecycle state.
type Phase int

const (
	// PhaseIdle means no run has started.
	PhaseIdle Phase = iota

	// PhasePlaying means the loop advances obstacles and spawns new ones.
	PhasePlaying

	// PhasePaused freezes obstacle motion and spawn timers. Recording may
	// continue independently of pause — calibration flows rely on that.
	PhasePaused

	// PhaseGameOver is terminal for the run.
	PhaseGameOver
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhasePlaying:
		return "PLAYING"
	case PhasePaused:
		return "PAUSED"
	case PhaseGameOver:
		return "GAMEOVER"
	default:
		return "UNKNOWN"
	}
}

// Obstacle is a scheduler-owned track entity. Position is the scalar
// distance of its leading edge along the track; it decreases every tick as
// the obstacle approaches the player.
type Obstacle struct {
	ID        int
	X         float64
	Size      float64
	Triggered bool
	Destroyed bool

	// Phrase is bound at trigger time and nil before the obstacle crosses
	// the reveal distance.
	Phrase *corpus.Phrase
}

// RunState aggregates the mutable per-run counters. It is mutated
// exclusively by the [Scheduler] and reset at the start of every run;
// everything else reads copies.
type RunState struct {
	Score            int
	Level            int
	Lives            int
	Combo            int
	MaxCombo         int
	PhrasesAttempted int
	PhrasesSucceeded int
}

// Stats is the final aggregate reported once at game over.
type Stats struct {
	Score    int
	MaxLevel int

	// Accuracy is PhrasesSucceeded / PhrasesAttempted, or 0 when nothing
	// was attempted.
	Accuracy float64

	MaxCombo int

	// Duration is accumulated PLAYING time, excluding pauses.
	Duration time.Duration
}

// Hooks is the fixed set of observer callbacks the scheduler notifies.
// Nil entries are skipped. Callbacks run synchronously inside the frame tick
// with the scheduler lock held: keep them cheap and never call back into the
// [Scheduler] from a hook.
type Hooks struct {
	// OnScore fires after every score change with the new total and delta.
	OnScore func(score, delta int)

	// OnLives fires after a collision decrements lives.
	OnLives func(lives int)

	// OnLevel fires when the level increases. Levels never decrease within
	// a run.
	OnLevel func(level int)

	// OnCombo fires when the combo counter changes.
	OnCombo func(combo int)

	// OnPhrase fires when an obstacle crosses the reveal distance and a
	// phrase is bound to it: the player must now speak.
	OnPhrase func(phrase corpus.Phrase, obstacleID int)

	// OnObstacle fires when an obstacle is destroyed. passed is true for a
	// collision (the obstacle got past the player), false for a phrase
	// success.
	OnObstacle func(ob Obstacle, passed bool)

	// OnGameOver fires exactly once when lives reach zero.
	OnGameOver func(stats Stats)
}

// PhraseSource supplies target phrases for the current level. Implemented by
// [corpus.Selector]; the scheduler expects selection to be side-effect free
// from its own perspective.
type PhraseSource interface {
	Select(level int) (corpus.Phrase, error)
}
