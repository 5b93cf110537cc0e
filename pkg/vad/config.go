package vad

import "log/slog"

// Config holds the tunables of the segmentation pipeline. Zero values are
// replaced by the defaults listed per field; out-of-range values are clamped
// or swapped, never rejected, so a Detector can always be constructed from a
// partially filled Config. Millisecond values are mapped to frame counts via
// the fixed 16 ms frame duration.
type Config struct {
	// PositiveSpeechThreshold is the smoothed probability needed for a
	// frame to count as voice while in silence. Default 0.5.
	PositiveSpeechThreshold float32

	// NegativeSpeechThreshold is the smoothed probability needed to remain
	// in speech. Must be ≤ PositiveSpeechThreshold; inverted values are
	// swapped at construction. Default 0.35.
	NegativeSpeechThreshold float32

	// MinSpeechFrames is the number of consecutive voice frames required to
	// open a segment. Default 3.
	MinSpeechFrames int

	// MinSilenceFrames is the number of consecutive silent frames required
	// (together with post-pad exhaustion) to close a segment. Default 8.
	MinSilenceFrames int

	// ProbSmoothing is the EMA coefficient α in
	// smoothed = α·prev + (1−α)·raw. Clamped to [0, 1]. Default 0.1.
	// Set to 0 to disable smoothing. The zero value means "default"; use
	// NoSmoothing to request a literal 0.
	ProbSmoothing float32

	// NoSmoothing forces ProbSmoothing to 0 regardless of its value.
	NoSmoothing bool

	// EnergyGateDB, when non-nil, closes the gate for frames whose raw RMS
	// level in dBFS is below the threshold. A closed gate forces the frame
	// to non-voice regardless of the classifier. Nil disables the gate.
	EnergyGateDB *float64

	// PreEmphasis is the pre-emphasis coefficient applied to the classifier
	// input (never to the emitted audio). Clamped to [0, 0.97]. 0 disables.
	PreEmphasis float32

	// PreSpeechPadMs is how much leading context to include before the
	// voice onset. Default 200; negative values disable the pre-pad.
	PreSpeechPadMs int

	// PostSpeechPadMs is how much trailing context to include after the
	// last voice frame. Default 160; negative values disable the post-pad.
	PostSpeechPadMs int

	// MinSpeechMs is the minimum total segment duration; shorter segments
	// are reported as misfires and discarded. Default 150; negative values
	// disable the misfire check.
	MinSpeechMs int
}

// Default configuration values.
const (
	DefaultPositiveSpeechThreshold float32 = 0.5
	DefaultNegativeSpeechThreshold float32 = 0.35
	DefaultMinSpeechFrames                 = 3
	DefaultMinSilenceFrames                = 8
	DefaultProbSmoothing           float32 = 0.1
	DefaultPreSpeechPadMs                  = 200
	DefaultPostSpeechPadMs                 = 160
	DefaultMinSpeechMs                     = 150
)

// frameDurationMs is the fixed frame duration used for ms → frame mapping.
const frameDurationMs = FrameSize * 1000 / SampleRate // 16

// settings is the validated, frame-count form of Config used internally.
type settings struct {
	positive float32
	negative float32

	minSpeechFrames  int
	minSilenceFrames int

	alpha float32

	energyGateDB *float64
	preEmphasis  float32

	prePadFrames  int
	postPadFrames int
	minSpeechMs   int
}

// normalize applies defaults, clamps out-of-range values, swaps inverted
// thresholds, and converts millisecond pads to frame counts.
func (c Config) normalize() settings {
	s := settings{
		positive:         c.PositiveSpeechThreshold,
		negative:         c.NegativeSpeechThreshold,
		minSpeechFrames:  c.MinSpeechFrames,
		minSilenceFrames: c.MinSilenceFrames,
		alpha:            c.ProbSmoothing,
		energyGateDB:     c.EnergyGateDB,
		preEmphasis:      c.PreEmphasis,
		minSpeechMs:      c.MinSpeechMs,
	}

	if s.positive == 0 {
		s.positive = DefaultPositiveSpeechThreshold
	}
	if s.negative == 0 {
		s.negative = DefaultNegativeSpeechThreshold
	}
	s.positive = clamp01(s.positive)
	s.negative = clamp01(s.negative)
	if s.negative > s.positive {
		slog.Warn("vad: negative speech threshold above positive, swapping",
			"positive", s.positive,
			"negative", s.negative,
		)
		s.positive, s.negative = s.negative, s.positive
	}

	if s.minSpeechFrames <= 0 {
		s.minSpeechFrames = DefaultMinSpeechFrames
	}
	if s.minSilenceFrames <= 0 {
		s.minSilenceFrames = DefaultMinSilenceFrames
	}

	if c.NoSmoothing {
		s.alpha = 0
	} else if s.alpha == 0 {
		s.alpha = DefaultProbSmoothing
	}
	s.alpha = clamp01(s.alpha)

	if s.preEmphasis < 0 {
		s.preEmphasis = 0
	}
	if s.preEmphasis > 0.97 {
		s.preEmphasis = 0.97
	}

	prePadMs := c.PreSpeechPadMs
	if prePadMs == 0 {
		prePadMs = DefaultPreSpeechPadMs
	}
	postPadMs := c.PostSpeechPadMs
	if postPadMs == 0 {
		postPadMs = DefaultPostSpeechPadMs
	}
	if s.minSpeechMs == 0 {
		s.minSpeechMs = DefaultMinSpeechMs
	}
	if s.minSpeechMs < 0 {
		s.minSpeechMs = 0
	}

	s.prePadFrames = msToFrames(prePadMs)
	s.postPadFrames = msToFrames(postPadMs)

	// Bound the pads so a misconfigured duration cannot grow the ring or
	// the flush drain without limit. 1024 frames is ~16.4 s of audio.
	if s.prePadFrames > maxPadFrames {
		slog.Warn("vad: pre-speech pad too large, clamping",
			"frames", s.prePadFrames, "max", maxPadFrames)
		s.prePadFrames = maxPadFrames
	}
	if s.postPadFrames > maxPadFrames {
		slog.Warn("vad: post-speech pad too large, clamping",
			"frames", s.postPadFrames, "max", maxPadFrames)
		s.postPadFrames = maxPadFrames
	}
	return s
}

// maxPadFrames bounds the pre-pad ring and the post-pad countdown.
const maxPadFrames = 1024

// msToFrames converts a millisecond duration to a frame count, rounding to
// the nearest frame. Negative durations map to 0.
func msToFrames(ms int) int {
	if ms <= 0 {
		return 0
	}
	return (ms + frameDurationMs/2) / frameDurationMs
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
