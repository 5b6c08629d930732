// Package opusrec encodes recorded utterance audio into Opus packets for
// upload to the collector backend.
//
// The recorder accumulates mono PCM frames during an utterance, resamples
// them to the Opus encode rate, and slices them into fixed 20 ms encoder
// frames. Packets are retained in memory until [Recorder.Finish]; one
// utterance is at most a few seconds of speech, so the packet buffer stays
// small.
//
// A Recorder is not safe for concurrent use; drive it from the recording
// session's polling goroutine.
package opusrec

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/carivox/voicerunner/pkg/audio"
)

// Utterance audio is encoded as 48 kHz mono Opus at 20 ms frame size.
const (
	encodeSampleRate = 48000
	encodeChannels   = 1
	frameSizeMs      = 20
	// frameSize is the number of samples per 20 ms encoder frame.
	frameSize = encodeSampleRate * frameSizeMs / 1000 // 960
)

// Recorder buffers PCM for a single utterance and encodes it to Opus.
type Recorder struct {
	enc     *gopus.Encoder
	srcRate int
	pending []int16 // resampled samples not yet forming a full encoder frame
	packets [][]byte
}

// New creates a Recorder for PCM captured at srcRate Hz.
func New(srcRate int) (*Recorder, error) {
	if srcRate <= 0 {
		return nil, fmt.Errorf("opusrec: invalid source sample rate %d", srcRate)
	}
	enc, err := gopus.NewEncoder(encodeSampleRate, encodeChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opusrec: create opus encoder: %w", err)
	}
	return &Recorder{enc: enc, srcRate: srcRate}, nil
}

// Append adds one captured PCM frame to the utterance. Full 20 ms encoder
// frames are encoded immediately; the remainder is carried over to the next
// Append.
func (r *Recorder) Append(frame []int16) error {
	r.pending = append(r.pending, audio.ResampleMono16(frame, r.srcRate, encodeSampleRate)...)

	for len(r.pending) >= frameSize {
		if err := r.encodeFrame(r.pending[:frameSize]); err != nil {
			return err
		}
		r.pending = r.pending[frameSize:]
	}
	return nil
}

// Finish zero-pads and encodes any trailing partial frame and returns all
// Opus packets for the utterance in order. The recorder is reset and ready
// for the next utterance.
func (r *Recorder) Finish() ([][]byte, error) {
	if len(r.pending) > 0 {
		last := make([]int16, frameSize)
		copy(last, r.pending)
		if err := r.encodeFrame(last); err != nil {
			return nil, err
		}
	}
	packets := r.packets
	r.packets = nil
	r.pending = nil
	return packets, nil
}

// Reset discards any buffered audio without encoding it. Used when an
// utterance is abandoned (recording stopped before onset).
func (r *Recorder) Reset() {
	r.pending = nil
	r.packets = nil
}

// encodeFrame encodes exactly one frameSize-sample frame and appends the
// resulting packet.
func (r *Recorder) encodeFrame(pcm []int16) error {
	packet, err := r.enc.Encode(pcm, frameSize, frameSize*2)
	if err != nil {
		return fmt.Errorf("opusrec: opus encode: %w", err)
	}
	out := make([]byte, len(packet))
	copy(out, packet)
	r.packets = append(r.packets, out)
	return nil
}
