// Package audio defines the types and interfaces for microphone capture and
// amplitude analysis within Voice Runner.
//
// The two primary abstractions are:
//
//   - [Input] — an already-granted audio input device that delivers PCM frames.
//   - [Sampler] — converts those frames into a scalar loudness sequence and
//     tracks peak amplitude and clipping across a recording.
//
// Implementations of [Input] are provided by host-specific adapter packages
// (browser capture bridges, portaudio, file replay in tests). The interface is
// intentionally narrow so the recording session stays decoupled from device
// details.
//
// This package lives under pkg/ because external code (host adapters) is
// expected to implement [Input].
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrInputUnavailable is returned by [Input.Init] when the underlying device
// cannot be acquired (permission denied, device missing, already in use).
// The sampler never substitutes synthetic data for a failed device.
var ErrInputUnavailable = errors.New("audio: input unavailable")

// AudioFrame represents a single frame of captured audio. Frames are the
// atomic unit of amplitude analysis — polled from the input device, measured
// by the [Sampler], and buffered by the utterance recorder.
type AudioFrame struct {
	// Data holds mono PCM samples.
	Data []int16

	// SampleRate in Hz (e.g., 48000 or 16000).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to recording start.
	Timestamp time.Duration
}

// Input is an audio input device with an already-granted capture handle.
// The core never requests permission itself; acquiring the grant is the
// host's responsibility.
//
// Exactly one Input may be live per recording session. Implementations must
// release the device handle on Destroy even if Init previously failed.
type Input interface {
	// Init acquires the capture handle and starts frame delivery. It returns
	// [ErrInputUnavailable] (possibly wrapped) when the device cannot be
	// opened. Init on an already-initialised input is a no-op.
	Init(ctx context.Context) error

	// Resume restarts a suspended capture context. Host runtimes may suspend
	// audio processing until a user interaction; Resume is a no-op when the
	// context is already running.
	Resume(ctx context.Context) error

	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the input is destroyed.
	Frames() <-chan AudioFrame

	// Destroy stops capture and releases the device handle. Calling Destroy
	// more than once is safe.
	Destroy() error
}
