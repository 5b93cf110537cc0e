// Package classifier defines the boundary to frame-level voice classifiers.
//
// A classifier is a black box that, given one fixed-length frame of 16 kHz
// mono float32 PCM, returns a voice probability and a binary voice flag. The
// segmentation pipeline in pkg/vad invokes it exactly once per frame and
// treats the call as synchronous: an implementation may be asynchronous
// internally, but it must not return before the result for the supplied
// frame is known, so that frame ordering is preserved.
//
// Implementations are stateful per stream (e.g. recurrent model state) and
// are not safe for concurrent use unless documented otherwise. Create one
// classifier per audio stream.
package classifier

// Result is the classification outcome for a single frame.
type Result struct {
	// Probability is the voice probability in [0, 1].
	Probability float32

	// IsVoice is the classifier's own binary decision for the frame. The
	// segmentation state machine combines it with its thresholds and the
	// energy gate; a frame only counts as voice when both agree.
	IsVoice bool
}

// Classifier scores one frame at a time.
//
// Classify must be called with frames of exactly 256 samples (vad.FrameSize)
// in stream order. On error the caller degrades the frame to non-voice rather
// than dropping it, so implementations should return errors for transient
// failures without worrying about stream continuity.
type Classifier interface {
	// Classify returns the voice probability and flag for one frame.
	Classify(frame []float32) (Result, error)

	// Reset clears accumulated model state (e.g. between streams) without
	// releasing resources.
	Reset()

	// Close releases all resources. Safe to call multiple times; Classify
	// must return an error after Close.
	Close() error
}
