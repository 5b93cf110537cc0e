// Package vad turns a continuous 16 kHz mono audio stream into discrete,
// padded speech segments using a frame-level voice classifier.
//
// The pipeline is: fixed-size framing of arbitrary pushes (FrameAssembler),
// per-frame signal conditioning (pre-emphasis for the classifier input and
// an RMS energy gate over the raw samples), one classifier call per frame,
// exponential smoothing of the raw probability, and a hysteresis state
// machine that debounces speech/silence runs, seeds segments from a bounded
// pre-pad ring buffer, counts down trailing post-pad silence, and rejects
// segments shorter than a configured minimum as misfires.
//
// A [Detector] is single-stream and single-writer: Push, Flush and Close
// must not be called concurrently. Concurrent streams use one Detector
// each. The only externally observable effects are the three [Callbacks],
// invoked synchronously from the pushing goroutine.
package vad

import (
	"errors"
	"time"
)

const (
	// SampleRate is the fixed input sample rate in Hz.
	SampleRate = 16000

	// FrameSize is the number of samples per frame, the atomic unit of
	// classification. 256 samples at 16 kHz is 16 ms.
	FrameSize = 256

	// FrameDuration is the wall-clock length of one frame.
	FrameDuration = FrameSize * time.Second / SampleRate
)

// ErrClosed is returned by Push and Flush after Close.
var ErrClosed = errors.New("vad: detector closed")

// Segment is one detected speech segment, including the configured pre- and
// post-padding. Samples are contiguous 16 kHz mono float32 PCM owned by the
// receiver of the callback.
type Segment struct {
	Samples []float32
}

// DurationMs returns the segment length in milliseconds, rounded to the
// nearest integer.
func (s Segment) DurationMs() int {
	return int((int64(len(s.Samples))*1000 + SampleRate/2) / SampleRate)
}

// Duration returns the segment length as a time.Duration.
func (s Segment) Duration() time.Duration {
	return time.Duration(len(s.Samples)) * time.Second / SampleRate
}

// Callbacks are invoked synchronously from the goroutine that calls Push or
// Flush. All fields are optional; nil handlers are skipped. Each invocation
// is isolated: a panicking handler is recovered and logged, and the stream
// keeps advancing.
type Callbacks struct {
	// OnSpeechStart fires once when a debounced voice run opens a segment.
	OnSpeechStart func()

	// OnSpeechEnd receives the finalized segment, pre/post padding included.
	// The slice is owned by the callback; the detector does not reuse it.
	OnSpeechEnd func(seg Segment)

	// OnVADMisfire fires instead of OnSpeechEnd when the finalized segment
	// is shorter than Config.MinSpeechMs. The audio is discarded.
	OnVADMisfire func()
}
