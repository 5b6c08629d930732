package game

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/carivox/voicerunner/internal/corpus"
	"github.com/carivox/voicerunner/internal/game/evaluate"
)

// activePhrase is the currently revealed target phrase together with the
// obstacle it is bound to. It is the only state shared between the frame
// loop and the speech-end handler, so it is always read and written as a
// unit under the scheduler lock.
type activePhrase struct {
	phrase     corpus.Phrase
	obstacleID int
}

// Scheduler owns the obstacle list and [RunState] for one game session. It
// is constructed once per session with lifecycle Start/Pause/Resume and is
// advanced by the host frame loop through [Scheduler.Advance].
//
// All methods are safe for concurrent use. The host model is cooperative
// (one frame loop, one audio polling loop), but the phrase handoff between
// them must be atomic, so the scheduler locks around every entry point.
type Scheduler struct {
	cfg    Config
	hooks  Hooks
	source PhraseSource

	mu        sync.Mutex
	phase     Phase
	state     RunState
	obstacles []*Obstacle
	nextID    int
	active    *activePhrase

	sinceSpawn     time.Duration
	invincibleLeft time.Duration
	elapsed        time.Duration
}

// NewScheduler creates a Scheduler in the IDLE phase.
func NewScheduler(cfg Config, source PhraseSource, hooks Hooks) *Scheduler {
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		hooks:  hooks,
		source: source,
		phase:  PhaseIdle,
	}
}

// Start begins a fresh run: counters reset, obstacle list cleared, phase
// PLAYING. Starting over a finished or running game resets it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhasePlaying
	s.state = RunState{
		Level: 1,
		Lives: s.cfg.Lives,
	}
	s.obstacles = nil
	s.active = nil
	s.sinceSpawn = 0
	s.invincibleLeft = 0
	s.elapsed = 0
}

// Pause freezes obstacle motion and spawn timers. Recording is not the
// scheduler's concern and continues independently.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhasePlaying {
		s.phase = PhasePaused
	}
}

// Resume continues a paused run.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhasePaused {
		s.phase = PhasePlaying
	}
}

// Phase returns the current run phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State returns a copy of the current run counters.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Obstacles returns a snapshot of the live obstacle list for rendering.
func (s *Scheduler) Obstacles() []Obstacle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Obstacle, 0, len(s.obstacles))
	for _, ob := range s.obstacles {
		out = append(out, *ob)
	}
	return out
}

// ActivePhrase returns an atomic snapshot of the currently revealed phrase
// and its obstacle ID. The speech-end handler calls this at the moment
// speech ends, before invoking the evaluator, so a phrase swap mid-
// evaluation cannot tear the pair apart.
func (s *Scheduler) ActivePhrase() (corpus.Phrase, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return corpus.Phrase{}, 0, false
	}
	return s.active.phrase, s.active.obstacleID, true
}

// Speed returns the current obstacle speed in track units per second.
func (s *Scheduler) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.BaseSpeed + float64(s.state.Level-1)*s.cfg.SpeedIncrement
}

// Advance moves the simulation by delta. Only the PLAYING phase advances;
// IDLE, PAUSED and GAMEOVER ticks are no-ops. Delta is clamped to
// MaxFrameDelta so frame stalls cannot teleport obstacles.
func (s *Scheduler) Advance(delta time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return
	}
	if delta < 0 {
		return
	}
	if delta > s.cfg.MaxFrameDelta {
		delta = s.cfg.MaxFrameDelta
	}
	s.elapsed += delta

	if s.invincibleLeft > 0 {
		s.invincibleLeft -= delta
		if s.invincibleLeft < 0 {
			s.invincibleLeft = 0
		}
	}

	s.moveObstacles(delta)
	s.triggerPhrases()
	s.checkCollisions()
	s.pruneObstacles()
	s.spawn(delta)
}

// ResolveAttempt applies an utterance verdict for the obstacle it was
// evaluated against. It returns the score delta awarded (zero for rejects)
// and whether the verdict was applied at all.
//
// A verdict for an obstacle that was already destroyed — typically by a
// collision landing in the same tick window — is stale: it is discarded as a
// no-op with a diagnostic log, never an error. Rejections keep the obstacle
// exposed; the player can retry until acceptance or collision.
func (s *Scheduler) ResolveAttempt(obstacleID int, verdict evaluate.Verdict) (scoreDelta int, applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying && s.phase != PhasePaused {
		return 0, false
	}

	ob := s.findObstacle(obstacleID)
	if ob == nil || ob.Destroyed || ob.Phrase == nil {
		slog.Debug("game: stale verdict discarded",
			"obstacle_id", obstacleID,
			"accepted", verdict.Accepted,
			"reason", verdict.Reason,
		)
		return 0, false
	}

	s.state.PhrasesAttempted++

	if !verdict.Accepted {
		return 0, true
	}

	// Success: destroy the obstacle, grow the combo, award score.
	ob.Destroyed = true
	s.clearActiveIf(obstacleID)
	s.state.PhrasesSucceeded++

	s.state.Combo++
	if s.state.Combo > s.state.MaxCombo {
		s.state.MaxCombo = s.state.Combo
	}
	if s.hooks.OnCombo != nil {
		s.hooks.OnCombo(s.state.Combo)
	}

	multiplier := math.Min(3, 1+float64(s.state.Combo-1)*0.5)
	base := float64(s.cfg.BaseScore) +
		float64(ob.Phrase.Tier*s.cfg.TierBonus) +
		verdict.Confidence*s.cfg.ConfidenceBonus
	scoreDelta = int(math.Round(base * multiplier))

	s.state.Score += scoreDelta
	if s.hooks.OnScore != nil {
		s.hooks.OnScore(s.state.Score, scoreDelta)
	}
	if s.hooks.OnObstacle != nil {
		s.hooks.OnObstacle(*ob, false)
	}

	s.recomputeLevel()
	return scoreDelta, true
}

// Stats returns the aggregated run statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// ─── tick internals (all called with s.mu held) ─────────────────────────────

// moveObstacles advances every live obstacle leftward at the current speed.
func (s *Scheduler) moveObstacles(delta time.Duration) {
	speed := s.cfg.BaseSpeed + float64(s.state.Level-1)*s.cfg.SpeedIncrement
	dx := speed * delta.Seconds()
	for _, ob := range s.obstacles {
		if !ob.Destroyed {
			ob.X -= dx
		}
	}
}

// triggerPhrases binds a phrase to each obstacle that has just crossed the
// reveal distance.
func (s *Scheduler) triggerPhrases() {
	for _, ob := range s.obstacles {
		if ob.Triggered || ob.Destroyed {
			continue
		}
		if ob.X-(s.cfg.PlayerX+s.cfg.PlayerWidth) > s.cfg.RevealDistance {
			continue
		}

		phrase, err := s.source.Select(s.state.Level)
		if err != nil {
			// Leave the obstacle untriggered; it will pass as a silent
			// obstacle rather than aborting the run.
			slog.Warn("game: phrase selection failed", "error", err)
			ob.Triggered = true
			continue
		}

		ob.Triggered = true
		ob.Phrase = &phrase
		s.active = &activePhrase{phrase: phrase, obstacleID: ob.ID}
		if s.hooks.OnPhrase != nil {
			s.hooks.OnPhrase(phrase, ob.ID)
		}
	}
}

// checkCollisions tests the player box against every live obstacle. Any hit
// opens the invincibility window, during which all further collisions are
// ignored — the window applies globally, not per obstacle.
func (s *Scheduler) checkCollisions() {
	for _, ob := range s.obstacles {
		if s.phase == PhaseGameOver {
			return
		}
		if ob.Destroyed || s.invincibleLeft > 0 {
			continue
		}
		if ob.X > s.cfg.PlayerX+s.cfg.PlayerWidth || ob.X+ob.Size < s.cfg.PlayerX {
			continue
		}

		ob.Destroyed = true
		s.clearActiveIf(ob.ID)
		s.invincibleLeft = s.cfg.Invincibility

		s.state.Lives--
		if s.hooks.OnLives != nil {
			s.hooks.OnLives(s.state.Lives)
		}
		if s.state.Combo != 0 {
			s.state.Combo = 0
			if s.hooks.OnCombo != nil {
				s.hooks.OnCombo(0)
			}
		}
		if s.hooks.OnObstacle != nil {
			s.hooks.OnObstacle(*ob, true)
		}

		if s.state.Lives <= 0 {
			s.gameOver()
			return
		}
	}
}

// pruneObstacles drops obstacles that are destroyed or fully off the track.
func (s *Scheduler) pruneObstacles() {
	live := s.obstacles[:0]
	for _, ob := range s.obstacles {
		if ob.Destroyed || ob.X+ob.Size < 0 {
			continue
		}
		live = append(live, ob)
	}
	// Release dropped entries.
	for i := len(live); i < len(s.obstacles); i++ {
		s.obstacles[i] = nil
	}
	s.obstacles = live
}

// spawn creates a new obstacle when the level-scaled interval has elapsed
// and no live obstacle is still ahead of the player. The zone gate prevents
// two simultaneous speech demands.
func (s *Scheduler) spawn(delta time.Duration) {
	s.sinceSpawn += delta

	interval := s.cfg.BaseSpawnInterval - time.Duration(s.state.Level-1)*s.cfg.SpawnDecrement
	if interval < s.cfg.MinSpawnInterval {
		interval = s.cfg.MinSpawnInterval
	}
	if s.sinceSpawn < interval {
		return
	}
	for _, ob := range s.obstacles {
		if !ob.Destroyed && ob.X+ob.Size > s.cfg.PlayerX {
			return
		}
	}

	s.nextID++
	s.obstacles = append(s.obstacles, &Obstacle{
		ID:   s.nextID,
		X:    s.cfg.SpawnX,
		Size: s.cfg.ObstacleSize + float64(s.state.Level-1)*s.cfg.ObstacleGrowth,
	})
	s.sinceSpawn = 0
}

// recomputeLevel raises the level to floor(score/threshold)+1, capped at
// MaxLevel. Levels never decrease within a run.
func (s *Scheduler) recomputeLevel() {
	level := s.state.Score/s.cfg.LevelUpThreshold + 1
	if level > s.cfg.MaxLevel {
		level = s.cfg.MaxLevel
	}
	if level > s.state.Level {
		s.state.Level = level
		if s.hooks.OnLevel != nil {
			s.hooks.OnLevel(level)
		}
	}
}

// gameOver transitions to the terminal phase and reports final stats,
// exactly once.
func (s *Scheduler) gameOver() {
	s.phase = PhaseGameOver
	s.active = nil
	stats := s.statsLocked()

	slog.Info("game: run over",
		"score", stats.Score,
		"max_level", stats.MaxLevel,
		"accuracy", stats.Accuracy,
		"max_combo", stats.MaxCombo,
	)
	if s.hooks.OnGameOver != nil {
		s.hooks.OnGameOver(stats)
	}
}

func (s *Scheduler) statsLocked() Stats {
	var accuracy float64
	if s.state.PhrasesAttempted > 0 {
		accuracy = float64(s.state.PhrasesSucceeded) / float64(s.state.PhrasesAttempted)
	}
	return Stats{
		Score:    s.state.Score,
		MaxLevel: s.state.Level,
		Accuracy: accuracy,
		MaxCombo: s.state.MaxCombo,
		Duration: s.elapsed,
	}
}

func (s *Scheduler) findObstacle(id int) *Obstacle {
	for _, ob := range s.obstacles {
		if ob.ID == id {
			return ob
		}
	}
	return nil
}

// clearActiveIf drops the active phrase when it is bound to obstacleID.
func (s *Scheduler) clearActiveIf(obstacleID int) {
	if s.active != nil && s.active.obstacleID == obstacleID {
		s.active = nil
	}
}
