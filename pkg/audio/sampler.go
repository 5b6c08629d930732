package audio

import (
	"math"
	"sync"
)

// clipThreshold is the normalized absolute sample value above which a
// recording is flagged as clipping.
const clipThreshold = 0.95

// int16Scale normalizes int16 PCM samples into [-1, 1).
const int16Scale = 32768.0

// ComputeLoudness returns the root-mean-square loudness of a PCM frame,
// normalized into [0, 1]. It is deterministic for a given frame and NaN-free:
// an empty or all-zero frame returns exactly 0.
func ComputeLoudness(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		n := float64(s) / int16Scale
		sum += n * n
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	// Guard against accumulated rounding pushing past 1.0 for full-scale input.
	return math.Min(rms, 1)
}

// MaxAbsNormalized returns the largest absolute sample value of a frame,
// normalized into [0, 1].
func MaxAbsNormalized(frame []int16) float64 {
	var maxAbs int32
	for _, s := range frame {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	return float64(maxAbs) / int16Scale
}

// Sampler converts captured PCM frames into a scalar loudness sequence and
// tracks the running peak loudness and clipping flag for the current
// recording. It is the exclusive owner of peak/clip state; [Sampler.Reset] is
// called only at explicit recording start.
//
// Every processed frame produces a volume notification regardless of speech
// state — deciding significance is the detector's job, not the sampler's.
//
// Safe for concurrent use.
type Sampler struct {
	mu       sync.Mutex
	peak     float64
	clipping bool
	onVolume func(loudness float64)
}

// NewSampler creates a Sampler. onVolume, when non-nil, is invoked
// synchronously from [Sampler.Process] with every computed loudness value.
func NewSampler(onVolume func(loudness float64)) *Sampler {
	return &Sampler{onVolume: onVolume}
}

// Process computes the loudness of frame, updates the running peak and
// clipping state, fires the volume notification, and returns the loudness.
// Cost is O(len(frame)) with no allocation.
func (s *Sampler) Process(frame []int16) float64 {
	loudness := ComputeLoudness(frame)
	maxAbs := MaxAbsNormalized(frame)

	s.mu.Lock()
	if loudness > s.peak {
		s.peak = loudness
	}
	if maxAbs > clipThreshold {
		s.clipping = true
	}
	fn := s.onVolume
	s.mu.Unlock()

	if fn != nil {
		fn(loudness)
	}
	return loudness
}

// Peak returns the highest loudness observed since the last Reset.
func (s *Sampler) Peak() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Clipping reports whether any sample exceeded the clip threshold since the
// last Reset.
func (s *Sampler) Clipping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipping
}

// Reset clears peak and clipping state. Called exactly once per recording,
// at recording start.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peak = 0
	s.clipping = false
}
