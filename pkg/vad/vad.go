// Package vad implements amplitude-based Voice Activity Detection for the
// Voice Runner recording pipeline.
//
// The detector is a strict two-state machine (SILENT, SPEAKING) driven by a
// scalar loudness stream against a hysteresis band of two thresholds. Onset
// is immediate: loudness at or above the speech threshold flips SILENT →
// SPEAKING on the same observation. Offset is debounced: loudness at or below
// the silence threshold starts a deadline, and only if no recovery above the
// silence threshold happens before the deadline does the detector return to
// SILENT and emit a completed utterance.
//
// Deliberately no signal content is inspected — this is amplitude-only
// detection, not speech recognition.
//
// The detector is synchronous by design: [Detector.Observe] returns
// immediately with the resulting event, making it suitable for per-frame
// polling loops. Timing is deadline arithmetic against an injected monotonic
// clock rather than deferred callbacks, so the state machine is directly
// unit-testable with a fake clock.
//
// A Detector is not safe for concurrent use; drive it from a single polling
// goroutine.
package vad

import "time"

// Default timing constants. Both are configuration knobs on [Config];
// the defaults apply when the corresponding field is zero.
const (
	// DefaultDebounce is how long loudness must stay at or below the silence
	// threshold before a SPEAKING interval is considered ended.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultMinSpeech is the minimum SPEAKING duration for an interval to
	// count as an utterance. Shorter intervals are discarded silently as
	// transient noise spikes.
	DefaultMinSpeech = 200 * time.Millisecond

	// DefaultSpeechThreshold is the loudness at or above which onset fires.
	DefaultSpeechThreshold = 0.08

	// DefaultSilenceThreshold is the loudness at or below which the offset
	// debounce starts.
	DefaultSilenceThreshold = 0.03
)

// State is the detector state.
type State int

const (
	// StateSilent means no speech interval is open.
	StateSilent State = iota

	// StateSpeaking means an onset has fired and the interval is open.
	StateSpeaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilent:
		return "SILENT"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// EventType classifies the result of a single observation.
type EventType int

const (
	// EventNone means no state transition occurred.
	EventNone EventType = iota

	// EventSpeechStart means the detector transitioned SILENT → SPEAKING.
	// Speech-start carries no payload.
	EventSpeechStart

	// EventSpeechEnd means the detector transitioned SPEAKING → SILENT with
	// an interval at least the minimum speech duration. The event carries
	// the completed [Utterance].
	EventSpeechEnd
)

// Utterance is the payload of a speech-end event.
type Utterance struct {
	// Duration is the elapsed time from onset to the last moment loudness
	// was above the silence threshold. The debounce tail is not included.
	Duration time.Duration

	// PeakAmplitude is the highest loudness observed during the interval,
	// in [0, 1].
	PeakAmplitude float64
}

// Event is the result of one loudness observation.
type Event struct {
	Type      EventType
	Utterance Utterance // valid only when Type == EventSpeechEnd
}

// Config holds the detector thresholds and timing. Zero fields take the
// package defaults. SilenceThreshold must be at or below SpeechThreshold;
// the gap between them is the hysteresis band that prevents chatter around a
// single threshold.
type Config struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	Debounce         time.Duration
	MinSpeech        time.Duration
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.SpeechThreshold == 0 {
		c.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinSpeech == 0 {
		c.MinSpeech = DefaultMinSpeech
	}
	return c
}

// Option configures a [Detector].
type Option func(*Detector)

// WithClock injects the time source used for debounce deadlines. The default
// is [time.Now]. Tests use this to drive the state machine deterministically.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector is the two-state voice activity detector. It exclusively owns all
// onset/offset timing state; [Detector.Rearm] at recording restart is the
// only reset path.
type Detector struct {
	cfg Config
	now func() time.Time

	state       State
	onset       time.Time // when the current interval opened
	lastAbove   time.Time // last observation above the silence threshold
	offDeadline time.Time // zero when no debounce is pending
	peak        float64
}

// New creates a Detector in the SILENT state.
func New(cfg Config, opts ...Option) *Detector {
	d := &Detector{
		cfg: cfg.withDefaults(),
		now: time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the current detector state.
func (d *Detector) State() State {
	return d.state
}

// Observe feeds one loudness value into the state machine and returns the
// resulting event. Frame delivery is not assumed uniform: all timing is
// computed from the clock at observation time, never from frame counts.
func (d *Detector) Observe(loudness float64) Event {
	now := d.now()

	switch d.state {
	case StateSilent:
		if loudness >= d.cfg.SpeechThreshold {
			// Onset is immediate — no debounce on speech start.
			d.state = StateSpeaking
			d.onset = now
			d.lastAbove = now
			d.offDeadline = time.Time{}
			d.peak = loudness
			return Event{Type: EventSpeechStart}
		}
		return Event{Type: EventNone}

	case StateSpeaking:
		if loudness > d.peak {
			d.peak = loudness
		}
		if loudness > d.cfg.SilenceThreshold {
			// Recovery cancels any pending offset debounce.
			d.lastAbove = now
			d.offDeadline = time.Time{}
			return Event{Type: EventNone}
		}
		if d.offDeadline.IsZero() {
			d.offDeadline = now.Add(d.cfg.Debounce)
			return Event{Type: EventNone}
		}
		if now.Before(d.offDeadline) {
			return Event{Type: EventNone}
		}
		return d.close(d.lastAbove)
	}
	return Event{Type: EventNone}
}

// CloseOut terminates an open SPEAKING interval using "now" as the offset,
// for recording stops that interrupt an utterance. It returns the closed
// utterance and true when an interval was open; (zero, false) when the
// detector was already SILENT. The minimum-speech filter still applies, so a
// too-short interval returns false.
func (d *Detector) CloseOut() (Utterance, bool) {
	if d.state != StateSpeaking {
		return Utterance{}, false
	}
	ev := d.close(d.now())
	if ev.Type != EventSpeechEnd {
		return Utterance{}, false
	}
	return ev.Utterance, true
}

// Rearm resets the detector to SILENT and clears all timing state. Called
// every time recording explicitly restarts.
func (d *Detector) Rearm() {
	d.state = StateSilent
	d.onset = time.Time{}
	d.lastAbove = time.Time{}
	d.offDeadline = time.Time{}
	d.peak = 0
}

// close ends the current interval at offset and returns the speech-end event,
// or EventNone when the interval was shorter than the minimum and is
// discarded as noise.
func (d *Detector) close(offset time.Time) Event {
	duration := offset.Sub(d.onset)
	peak := d.peak

	d.state = StateSilent
	d.offDeadline = time.Time{}
	d.peak = 0

	if duration < d.cfg.MinSpeech {
		return Event{Type: EventNone}
	}
	return Event{
		Type: EventSpeechEnd,
		Utterance: Utterance{
			Duration:      duration,
			PeakAmplitude: peak,
		},
	}
}
