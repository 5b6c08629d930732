package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carivox/voicerunner/internal/corpus"
	"github.com/carivox/voicerunner/internal/game"
	"github.com/carivox/voicerunner/internal/game/evaluate"
	"github.com/carivox/voicerunner/internal/session"
	"github.com/carivox/voicerunner/pkg/audio"
)

// fakeClock is a manually advanced time source shared by the recorder and
// its detector.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeInput is an in-memory audio device.
type fakeInput struct {
	frames    chan audio.AudioFrame
	initErr   error
	inits     int
	destroyed bool
}

func newFakeInput() *fakeInput {
	return &fakeInput{frames: make(chan audio.AudioFrame, 64)}
}

func (f *fakeInput) Init(ctx context.Context) error {
	f.inits++
	return f.initErr
}

func (f *fakeInput) Resume(ctx context.Context) error { return nil }

func (f *fakeInput) Frames() <-chan audio.AudioFrame { return f.frames }

func (f *fakeInput) Destroy() error {
	if !f.destroyed {
		f.destroyed = true
		close(f.frames)
	}
	return nil
}

// captureEmitter collects everything the recorder emits.
type captureEmitter struct {
	attempts  []session.AttemptRecord
	summaries []session.RunSummary
}

func (e *captureEmitter) EmitAttempt(rec session.AttemptRecord) {
	e.attempts = append(e.attempts, rec)
}

func (e *captureEmitter) EmitRunSummary(sum session.RunSummary) {
	e.summaries = append(e.summaries, sum)
}

// stubSource hands out 4-syllable tier-1 phrases, one second of expected
// speech each.
type stubSource struct{}

func (stubSource) Select(level int) (corpus.Phrase, error) {
	return corpus.Phrase{
		ID:            "p1",
		Text:          "wata lak-out",
		Tier:          1,
		Category:      corpus.CategoryNeutral,
		Register:      corpus.RegisterMesolect,
		SyllableCount: 4,
	}, nil
}

// frameAt builds a 20 ms constant-amplitude mono frame whose RMS loudness
// equals the given value.
func frameAt(loudness float64) audio.AudioFrame {
	sample := int16(loudness * 32768)
	data := make([]int16, 960)
	for i := range data {
		data[i] = sample
	}
	return audio.AudioFrame{Data: data, SampleRate: 48000}
}

// feed advances the clock by step and processes one frame per step until
// span has elapsed.
func feed(ctx context.Context, r *session.Recorder, clk *fakeClock, loudness float64, span, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < span; elapsed += step {
		clk.Advance(step)
		r.ProcessFrame(ctx, frameAt(loudness))
	}
}

// newTestScheduler returns a started scheduler with one phrase already
// revealed, using a compressed track so the reveal happens within 400 ms of
// simulated play.
func newTestScheduler() *game.Scheduler {
	cfg := game.Config{
		BaseSpeed:         300,
		SpeedIncrement:    10,
		SpawnX:            300,
		PlayerX:           80,
		PlayerWidth:       40,
		RevealDistance:    420,
		ObstacleSize:      24,
		ObstacleGrowth:    1,
		BaseSpawnInterval: 300 * time.Millisecond,
		SpawnDecrement:    10 * time.Millisecond,
		MinSpawnInterval:  200 * time.Millisecond,
		Lives:             3,
		Invincibility:     1500 * time.Millisecond,
		LevelUpThreshold:  1 << 30,
		MaxLevel:          10,
		BaseScore:         100,
		TierBonus:         20,
		ConfidenceBonus:   50,
		MaxFrameDelta:     100 * time.Millisecond,
	}
	s := game.NewScheduler(cfg, stubSource{}, game.Hooks{})
	s.Start()
	for elapsed := time.Duration(0); elapsed < 400*time.Millisecond; elapsed += 20 * time.Millisecond {
		s.Advance(20 * time.Millisecond)
	}
	return s
}

func TestRecorder_StartErrorSurfacesUnavailableInput(t *testing.T) {
	t.Parallel()

	input := newFakeInput()
	input.initErr = audio.ErrInputUnavailable
	r := session.New(input, newTestScheduler(), &captureEmitter{})

	err := r.Start(context.Background())
	if !errors.Is(err, audio.ErrInputUnavailable) {
		t.Fatalf("Start error = %v, want ErrInputUnavailable", err)
	}
}

func TestRecorder_StartIsIdempotent(t *testing.T) {
	t.Parallel()

	input := newFakeInput()
	r := session.New(input, newTestScheduler(), &captureEmitter{})
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if input.inits != 1 {
		t.Errorf("input initialised %d times, want 1", input.inits)
	}
}

func TestRecorder_AcceptedAttemptEmitsRecord(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	input := newFakeInput()
	emitter := &captureEmitter{}
	sched := newTestScheduler()
	r := session.New(input, sched, emitter, session.WithClock(clk.Now))
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.NotePhraseReveal()

	// 100 ms of silence before the player starts speaking, then roughly a
	// second of speech and enough silence to trip the offset debounce.
	feed(ctx, r, clk, 0, 100*time.Millisecond, 20*time.Millisecond)
	feed(ctx, r, clk, 0.5, 1000*time.Millisecond, 20*time.Millisecond)
	feed(ctx, r, clk, 0, 400*time.Millisecond, 20*time.Millisecond)

	if len(emitter.attempts) != 1 {
		t.Fatalf("got %d attempt records, want 1", len(emitter.attempts))
	}
	rec := emitter.attempts[0]
	if rec.Outcome != evaluate.ReasonAccepted {
		t.Fatalf("outcome = %s, want ACCEPTED", rec.Outcome)
	}
	if rec.ScoreDelta != 170 {
		t.Errorf("score delta = %d, want 170", rec.ScoreDelta)
	}
	if rec.Combo != 1 {
		t.Errorf("combo = %d, want 1", rec.Combo)
	}
	if rec.PhraseID != "p1" {
		t.Errorf("phrase ID = %q, want p1", rec.PhraseID)
	}
	if rec.SessionID != r.SessionID() {
		t.Errorf("session ID = %q, want %q", rec.SessionID, r.SessionID())
	}
	// Onset fires on the first loud frame, 120 ms after the reveal; the
	// debounce tail is excluded from the duration.
	if rec.OnsetDelayMs != 120 {
		t.Errorf("onset delay = %d ms, want 120", rec.OnsetDelayMs)
	}
	if rec.DurationMs != 980 {
		t.Errorf("duration = %d ms, want 980", rec.DurationMs)
	}
	if rec.PeakAmplitude < 0.49 || rec.PeakAmplitude > 0.51 {
		t.Errorf("peak = %.3f, want ~0.5", rec.PeakAmplitude)
	}
	if rec.Clipping {
		t.Error("clipping flagged on a half-scale signal")
	}

	if got := sched.State().Score; got != 170 {
		t.Errorf("scheduler score = %d, want 170", got)
	}
}

func TestRecorder_StopClosesOpenUtterance(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	input := newFakeInput()
	emitter := &captureEmitter{}
	r := session.New(input, newTestScheduler(), emitter, session.WithClock(clk.Now))
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.NotePhraseReveal()
	feed(ctx, r, clk, 0.5, 500*time.Millisecond, 20*time.Millisecond)

	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(emitter.attempts) != 1 {
		t.Fatalf("got %d attempt records, want 1", len(emitter.attempts))
	}
	rec := emitter.attempts[0]
	if rec.Outcome != evaluate.ReasonAccepted {
		t.Errorf("outcome = %s, want ACCEPTED", rec.Outcome)
	}
	if rec.DurationMs < 450 || rec.DurationMs > 520 {
		t.Errorf("duration = %d ms, want ~500", rec.DurationMs)
	}
	if !input.destroyed {
		t.Error("input not destroyed on Stop")
	}
}

func TestRecorder_StopWithoutSpeechEmitsNoSpeech(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	input := newFakeInput()
	emitter := &captureEmitter{}
	sched := newTestScheduler()
	r := session.New(input, sched, emitter, session.WithClock(clk.Now))
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.NotePhraseReveal()
	feed(ctx, r, clk, 0, 600*time.Millisecond, 20*time.Millisecond)

	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(emitter.attempts) != 1 {
		t.Fatalf("got %d attempt records, want 1", len(emitter.attempts))
	}
	rec := emitter.attempts[0]
	if rec.Outcome != evaluate.ReasonNoSpeech {
		t.Errorf("outcome = %s, want NO_SPEECH", rec.Outcome)
	}
	if rec.OnsetDelayMs != -1 {
		t.Errorf("onset delay = %d, want -1 for no onset", rec.OnsetDelayMs)
	}
	if rec.ScoreDelta != 0 {
		t.Errorf("score delta = %d, want 0", rec.ScoreDelta)
	}
	if got := sched.State().PhrasesAttempted; got != 1 {
		t.Errorf("attempts counted = %d, want 1", got)
	}
}

func TestRecorder_UtteranceWithoutPhraseDiscarded(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	input := newFakeInput()
	emitter := &captureEmitter{}
	// A freshly started scheduler has not spawned anything yet, so no
	// phrase is active.
	sched := game.NewScheduler(game.Config{}, stubSource{}, game.Hooks{})
	sched.Start()
	r := session.New(input, sched, emitter, session.WithClock(clk.Now))
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	feed(ctx, r, clk, 0.5, 500*time.Millisecond, 20*time.Millisecond)
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if len(emitter.attempts) != 0 {
		t.Fatalf("got %d attempt records, want 0", len(emitter.attempts))
	}
}

func TestRecorder_ShortSpikeProducesNoRecord(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	input := newFakeInput()
	emitter := &captureEmitter{}
	r := session.New(input, newTestScheduler(), emitter, session.WithClock(clk.Now))
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.NotePhraseReveal()
	// 100 ms of noise is below the minimum speech duration.
	feed(ctx, r, clk, 0.5, 100*time.Millisecond, 20*time.Millisecond)
	feed(ctx, r, clk, 0, 400*time.Millisecond, 20*time.Millisecond)

	if len(emitter.attempts) != 0 {
		t.Fatalf("got %d attempt records, want 0", len(emitter.attempts))
	}
}

func TestRecorder_CompleteRunEmitsSummary(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	r := session.New(newFakeInput(), newTestScheduler(), emitter)

	r.CompleteRun(context.Background(), game.Stats{
		Score:    840,
		MaxLevel: 3,
		Accuracy: 0.75,
		MaxCombo: 4,
		Duration: 95 * time.Second,
	})

	if len(emitter.summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(emitter.summaries))
	}
	sum := emitter.summaries[0]
	if sum.Score != 840 || sum.MaxLevel != 3 || sum.MaxCombo != 4 {
		t.Errorf("summary = %+v, want score=840 level=3 combo=4", sum)
	}
	if sum.DurationSeconds != 95 {
		t.Errorf("duration seconds = %d, want 95", sum.DurationSeconds)
	}
	if sum.SessionID != r.SessionID() {
		t.Errorf("session ID = %q, want %q", sum.SessionID, r.SessionID())
	}
}

func TestRecorder_RunDrainsUntilInputCloses(t *testing.T) {
	t.Parallel()

	input := newFakeInput()
	r := session.New(input, newTestScheduler(), &captureEmitter{})
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	input.frames <- frameAt(0)
	input.frames <- frameAt(0)
	_ = input.Destroy()

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRecorder_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	input := newFakeInput()
	r := session.New(input, newTestScheduler(), &captureEmitter{})
	ctx, cancel := context.WithCancel(context.Background())

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}
