// Package energy implements a pure-Go classifier based on RMS signal
// level. It needs no model file and no native runtime, which makes it the
// fallback when an ONNX runtime is unavailable, and a cheap baseline for
// tests and load experiments. Accuracy is what you would expect from an
// energy detector: fine for push-to-talk style audio in a quiet room, poor
// against keyboard noise and music.
package energy

import (
	"errors"
	"math"
	"sync"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
)

// Default RMS levels, tuned for 16 kHz microphone audio normalized to
// [-1, 1]. Speech onset needs more energy than speech continuation so the
// flag does not flicker on breathy trailing syllables.
const (
	DefaultSpeechRMS  = 0.015
	DefaultSilenceRMS = 0.008
)

// ErrClosed is returned by Classify after Close.
var ErrClosed = errors.New("energy: classifier closed")

// Config holds the two hysteresis levels. Zero values select the defaults;
// inverted levels are swapped.
type Config struct {
	// SpeechRMS is the level at or above which a frame flips the
	// classifier into its voiced state.
	SpeechRMS float64

	// SilenceRMS is the level below which a voiced classifier flips back
	// to silence. Must not exceed SpeechRMS.
	SilenceRMS float64
}

// Classifier scores frames by RMS level with internal hysteresis.
//
// The probability is the frame level mapped linearly onto the band between
// the two thresholds, so downstream smoothing and thresholding behave the
// way they do with a model-backed classifier.
type Classifier struct {
	mu sync.Mutex

	speech  float64
	silence float64

	voiced bool
	closed bool
}

// New creates a Classifier from cfg.
func New(cfg Config) *Classifier {
	speech, silence := cfg.SpeechRMS, cfg.SilenceRMS
	if speech <= 0 {
		speech = DefaultSpeechRMS
	}
	if silence <= 0 {
		silence = DefaultSilenceRMS
	}
	if silence > speech {
		speech, silence = silence, speech
	}
	return &Classifier{speech: speech, silence: silence}
}

// Classify scores one frame. The frame may be any non-zero length; the
// level is the RMS over all samples.
func (c *Classifier) Classify(frame []float32) (classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return classifier.Result{}, ErrClosed
	}
	if len(frame) == 0 {
		return classifier.Result{}, errors.New("energy: empty frame")
	}

	level := rms(frame)

	// Hysteresis on the raw level, independent of the detector's own
	// probability hysteresis.
	if c.voiced {
		if level < c.silence {
			c.voiced = false
		}
	} else if level >= c.speech {
		c.voiced = true
	}

	return classifier.Result{
		Probability: c.probability(level),
		IsVoice:     c.voiced,
	}, nil
}

// probability maps level linearly onto [0, 1] across the hysteresis band.
func (c *Classifier) probability(level float64) float32 {
	p := (level - c.silence) / (c.speech - c.silence)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return float32(p)
}

// Reset clears the hysteresis state.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voiced = false
}

// Close marks the classifier closed. Idempotent.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func rms(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

var _ classifier.Classifier = (*Classifier)(nil)
