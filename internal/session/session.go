// Package session wires the recording pipeline together: it pulls PCM frames
// from an [audio.Input], measures loudness with an [audio.Sampler], detects
// speech intervals with a [vad.Detector], evaluates each closed utterance
// against the phrase currently revealed by the [game.Scheduler], and emits an
// [AttemptRecord] for every attempt to the configured [Emitter].
//
// The recorder is deliberately synchronous at its core: [Recorder.ProcessFrame]
// handles exactly one frame and returns, so the whole pipeline can be driven
// deterministically from tests with a fake clock. [Recorder.Run] is a thin
// convenience loop for production use.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carivox/voicerunner/internal/game"
	"github.com/carivox/voicerunner/internal/game/evaluate"
	"github.com/carivox/voicerunner/internal/observe"
	"github.com/carivox/voicerunner/pkg/audio"
	"github.com/carivox/voicerunner/pkg/audio/opusrec"
	"github.com/carivox/voicerunner/pkg/vad"
)

// Option configures a [Recorder].
type Option func(*Recorder)

// WithVADConfig overrides the detector thresholds and timing.
func WithVADConfig(cfg vad.Config) Option {
	return func(r *Recorder) { r.vadCfg = cfg }
}

// WithClock injects the time source used for onset-delay measurement and the
// detector's debounce deadlines. The default is [time.Now].
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithMetrics overrides the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithOpusCapture enables Opus encoding of each utterance. Encoded packets
// are attached to the [AttemptRecord] so the emitter can upload or store the
// audio alongside the metadata. Capture is disabled by default because the
// encoder needs cgo support on the host.
func WithOpusCapture() Option {
	return func(r *Recorder) { r.captureOpus = true }
}

// Recorder is the recording session for one game run. It owns the input
// device, the amplitude pipeline, and the speech detector; the scheduler and
// emitter are shared collaborators.
//
// A Recorder is not safe for concurrent use. Drive it from a single
// goroutine, either by calling [Recorder.ProcessFrame] directly or through
// [Recorder.Run].
type Recorder struct {
	input   audio.Input
	sched   *game.Scheduler
	emitter Emitter
	metrics *observe.Metrics

	vadCfg vad.Config
	now    func() time.Time

	sessionID string
	sampler   *audio.Sampler
	detector  *vad.Detector

	captureOpus bool
	enc         *opusrec.Recorder

	started bool

	// revealedAt is when the session was last told a phrase became visible;
	// zero when no reveal has been noted since the last attempt.
	revealedAt time.Time
	onsetAt    time.Time // zero until the current interval's onset fires
}

// New creates a Recorder bound to the given input, scheduler, and emitter.
func New(input audio.Input, sched *game.Scheduler, emitter Emitter, opts ...Option) *Recorder {
	r := &Recorder{
		input:     input,
		sched:     sched,
		emitter:   emitter,
		now:       time.Now,
		sessionID: uuid.NewString(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.sampler = audio.NewSampler(nil)
	r.detector = vad.New(r.vadCfg, vad.WithClock(r.now))
	return r
}

// SessionID returns the stable identifier stamped on every record this
// recorder emits.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Start acquires the input device and arms the detector. Start on an already
// started recorder is a no-op. A failed device acquisition is returned as an
// error wrapping [audio.ErrInputUnavailable]; the session never fabricates
// audio for a missing device.
func (r *Recorder) Start(ctx context.Context) error {
	if r.started {
		return nil
	}
	if err := r.input.Init(ctx); err != nil {
		return fmt.Errorf("session: init input: %w", err)
	}
	if err := r.input.Resume(ctx); err != nil {
		return fmt.Errorf("session: resume input: %w", err)
	}
	r.sampler.Reset()
	r.detector.Rearm()
	r.revealedAt = time.Time{}
	r.onsetAt = time.Time{}
	r.started = true
	r.metrics.ActiveRecordings.Add(ctx, 1)
	slog.Info("session: recording started", "session_id", r.sessionID)
	return nil
}

// Run pumps frames from the input until the context is cancelled or the
// input's frame channel closes. It is a convenience wrapper over
// [Recorder.ProcessFrame] for hosts that do not need frame-level control.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-r.input.Frames():
			if !ok {
				return nil
			}
			r.ProcessFrame(ctx, frame)
		}
	}
}

// NotePhraseReveal tells the session that a phrase just became visible to
// the player. The next speech onset is timed against this moment to produce
// the onset-delay field of the attempt record.
func (r *Recorder) NotePhraseReveal() {
	r.revealedAt = r.now()
	r.onsetAt = time.Time{}
}

// ProcessFrame runs one captured frame through the amplitude pipeline and
// the detector, handling any resulting speech event. It returns the loudness
// of the frame so callers can forward it to volume meters.
func (r *Recorder) ProcessFrame(ctx context.Context, frame audio.AudioFrame) float64 {
	if !r.started {
		return 0
	}
	loudness := r.sampler.Process(frame.Data)
	ev := r.detector.Observe(loudness)

	switch ev.Type {
	case vad.EventSpeechStart:
		r.onsetAt = r.now()
		r.beginCapture(frame.SampleRate)
		r.appendCapture(frame.Data)
	case vad.EventSpeechEnd:
		r.appendCapture(frame.Data)
		r.finishAttempt(ctx, ev.Utterance)
	default:
		if r.detector.State() == vad.StateSpeaking {
			r.appendCapture(frame.Data)
		}
	}
	return loudness
}

// Stop tears the session down. An utterance still open at stop time is
// closed out and evaluated as usual; a phrase that was revealed but never
// answered with any speech produces a NO_SPEECH attempt so every shown
// phrase leaves a record. Stop on a stopped recorder is a no-op.
func (r *Recorder) Stop(ctx context.Context) error {
	if !r.started {
		return nil
	}
	if utt, open := r.detector.CloseOut(); open {
		r.finishAttempt(ctx, utt)
	} else if !r.revealedAt.IsZero() && r.onsetAt.IsZero() {
		r.finishAttempt(ctx, vad.Utterance{})
	}
	r.started = false
	r.metrics.ActiveRecordings.Add(ctx, -1)
	err := r.input.Destroy()
	slog.Info("session: recording stopped", "session_id", r.sessionID)
	if err != nil {
		return fmt.Errorf("session: destroy input: %w", err)
	}
	return nil
}

// CompleteRun emits the final run summary. Call it once, after the scheduler
// reports game over.
func (r *Recorder) CompleteRun(ctx context.Context, stats game.Stats) {
	sum := RunSummary{
		SessionID:       r.sessionID,
		Timestamp:       r.now().UTC(),
		Score:           stats.Score,
		MaxLevel:        stats.MaxLevel,
		Accuracy:        stats.Accuracy,
		MaxCombo:        stats.MaxCombo,
		Duration:        stats.Duration,
		DurationSeconds: int64(stats.Duration / time.Second),
	}
	r.metrics.RunDuration.Record(ctx, stats.Duration.Seconds())
	r.emitter.EmitRunSummary(sum)
	slog.Info("session: run complete",
		"session_id", r.sessionID,
		"score", stats.Score,
		"accuracy", stats.Accuracy,
	)
}

// finishAttempt evaluates a closed utterance (or the zero utterance for a
// no-speech attempt) against the active phrase, applies the verdict to the
// scheduler, and emits the attempt record.
func (r *Recorder) finishAttempt(ctx context.Context, utt vad.Utterance) {
	packets := r.endCapture()

	phrase, obstacleID, ok := r.sched.ActivePhrase()
	if !ok {
		// Speech with no phrase on screen carries no attempt semantics.
		slog.Debug("session: utterance without active phrase discarded",
			"duration", utt.Duration,
		)
		r.resetAttempt()
		return
	}

	hadSpeech := !r.onsetAt.IsZero()
	result := evaluate.UtteranceResult{
		Duration:         utt.Duration,
		PeakAmplitude:    utt.PeakAmplitude,
		ClippingDetected: r.sampler.Clipping(),
		HadSpeech:        hadSpeech,
	}
	verdict := evaluate.Evaluate(phrase, result)
	scoreDelta, applied := r.sched.ResolveAttempt(obstacleID, verdict)
	if !applied {
		slog.Debug("session: verdict arrived for stale obstacle",
			"obstacle_id", obstacleID,
			"reason", verdict.Reason,
		)
		r.resetAttempt()
		return
	}

	onsetDelayMs := int64(-1)
	if hadSpeech && !r.revealedAt.IsZero() {
		onsetDelayMs = r.onsetAt.Sub(r.revealedAt).Milliseconds()
	}

	state := r.sched.State()
	rec := AttemptRecord{
		ID:             uuid.NewString(),
		SessionID:      r.sessionID,
		Timestamp:      r.now().UTC(),
		PhraseID:       phrase.ID,
		PhraseText:     phrase.Text,
		PhraseTier:     phrase.Tier,
		PhraseCategory: phrase.Category,
		PhraseRegister: phrase.Register,
		GameLevel:      state.Level,
		GameSpeed:      r.sched.Speed(),
		OnsetDelayMs:   onsetDelayMs,
		DurationMs:     utt.Duration.Milliseconds(),
		Outcome:        verdict.Reason,
		ScoreDelta:     scoreDelta,
		Combo:          state.Combo,
		PeakAmplitude:  utt.PeakAmplitude,
		Clipping:       result.ClippingDetected,
		Audio:          packets,
	}
	r.emitter.EmitAttempt(rec)

	r.metrics.RecordVerdict(ctx, string(verdict.Reason))
	if hadSpeech {
		r.metrics.UtteranceDuration.Record(ctx, utt.Duration.Seconds())
	}
	r.resetAttempt()
}

// resetAttempt clears per-attempt state so the next phrase starts clean.
func (r *Recorder) resetAttempt() {
	r.sampler.Reset()
	r.revealedAt = time.Time{}
	r.onsetAt = time.Time{}
}

// beginCapture starts Opus encoding for a new utterance when enabled. An
// encoder failure disables capture for the session rather than failing the
// attempt; the metadata record is always more valuable than the audio.
func (r *Recorder) beginCapture(sampleRate int) {
	if !r.captureOpus {
		return
	}
	if r.enc == nil {
		enc, err := opusrec.New(sampleRate)
		if err != nil {
			slog.Warn("session: opus capture unavailable", "error", err)
			r.captureOpus = false
			return
		}
		r.enc = enc
	}
	r.enc.Reset()
}

func (r *Recorder) appendCapture(pcm []int16) {
	if r.enc == nil {
		return
	}
	if err := r.enc.Append(pcm); err != nil {
		slog.Warn("session: opus encode failed, dropping capture", "error", err)
		r.enc = nil
		r.captureOpus = false
	}
}

// endCapture flushes the encoder and returns the utterance's packets, or nil
// when capture is off.
func (r *Recorder) endCapture() [][]byte {
	if r.enc == nil {
		return nil
	}
	packets, err := r.enc.Finish()
	if err != nil {
		slog.Warn("session: opus finish failed", "error", err)
		return nil
	}
	return packets
}
