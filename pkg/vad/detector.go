package vad

import (
	"fmt"
	"log/slog"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
)

// Detector is the streaming entry point of the pipeline. It owns a
// FrameAssembler, a Conditioner, a probability smoother and the
// segmentation state machine, and drives one classifier call per frame.
//
// A Detector serves exactly one logical stream. Push, Flush and Close must
// be called from a single goroutine (or under external synchronization);
// the classifier call is a synchronous step, so a stalled classifier stalls
// the stream — timeout policy belongs to the classifier adapter.
type Detector struct {
	cls classifier.Classifier
	cb  Callbacks
	log *slog.Logger

	assembler FrameAssembler
	cond      *Conditioner
	smooth    smoother
	seg       *segmenter

	frameIndex int64
	closed     bool
}

// Option customises a Detector beyond its Config.
type Option func(*Detector)

// WithLogger sets the logger used for degraded-frame and recovered-callback
// reports. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// New creates a Detector. cfg is normalized (defaults, clamps, threshold
// swap) as documented on [Config]; cls must be non-nil and is owned by the
// Detector from this point — Close releases it.
func New(cfg Config, cls classifier.Classifier, cb Callbacks, opts ...Option) (*Detector, error) {
	if cls == nil {
		return nil, fmt.Errorf("vad: nil classifier")
	}
	s := cfg.normalize()
	d := &Detector{
		cls:    cls,
		cb:     cb,
		log:    slog.Default(),
		cond:   NewConditioner(s.preEmphasis, s.energyGateDB),
		smooth: smoother{alpha: s.alpha},
		seg:    newSegmenter(s),
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With("component", "vad")
	return d, nil
}

// Push feeds samples into the stream. Chunk boundaries are arbitrary: the
// emitted segments are identical whether the same audio arrives one sample
// or one minute at a time. Samples must be 16 kHz mono float32 in [-1, 1].
func (d *Detector) Push(samples []float32) error {
	if d.closed {
		return ErrClosed
	}
	for _, frame := range d.assembler.Push(samples) {
		d.processFrame(frame)
	}
	return nil
}

// Flush drains the stream at its end: the held partial frame is zero-padded
// and processed, and an open segment is force-closed by feeding synthetic
// silent frames through the silence path. The drain is explicitly bounded
// so a pathological post-pad configuration cannot loop; past the bound the
// segment is finalized directly. Flushing twice with no intervening Push
// fires no additional callbacks.
func (d *Detector) Flush() error {
	if d.closed {
		return ErrClosed
	}
	if frame := d.assembler.Flush(); frame != nil {
		d.processFrame(frame)
	}

	if !d.seg.inSpeech {
		return nil
	}
	bound := d.seg.cfg.minSilenceFrames + d.seg.cfg.postPadFrames + 1
	for i := 0; i < bound && d.seg.inSpeech; i++ {
		frame := make([]float32, FrameSize)
		d.frameIndex++
		d.dispatch(d.seg.process(frame, false))
	}
	if d.seg.inSpeech {
		// Unreachable with a consistent configuration; kept as a backstop
		// so an open segment can never outlive its stream.
		d.log.Warn("flush drain bound reached, force-finalizing segment")
		d.dispatch(d.seg.finalize())
	}
	return nil
}

// Close releases the classifier and invalidates further Push and Flush
// calls. Idempotent. Close does not flush; call Flush first when the final
// segment matters.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.cls.Close(); err != nil {
		return fmt.Errorf("vad: close classifier: %w", err)
	}
	return nil
}

// FramesProcessed returns the number of frames the state machine has
// consumed, synthetic flush frames included. The index wraps only after
// centuries of audio; wrap-around is documented, not handled.
func (d *Detector) FramesProcessed() int64 { return d.frameIndex }

// processFrame runs the per-frame pipeline: condition, classify, smooth,
// decide, advance the state machine, dispatch callbacks.
func (d *Detector) processFrame(frame []float32) {
	input, gateOpen := d.cond.Process(frame)

	res, err := d.cls.Classify(input)
	if err != nil {
		// A failed frame degrades to non-voice instead of being dropped,
		// so stream indexing stays contiguous. No retry: replaying would
		// break the ordering and latency guarantees.
		d.log.Warn("classifier error, treating frame as non-voice",
			"frame", d.frameIndex, "err", err)
		res = classifier.Result{}
	}

	smoothed := d.smooth.update(res.Probability)
	isVoice := res.IsVoice && gateOpen && smoothed >= d.seg.threshold()

	d.frameIndex++
	d.dispatch(d.seg.process(frame, isVoice))
}

// dispatch invokes the configured callbacks for ev, isolating each one so a
// panicking handler cannot corrupt state-machine progression.
func (d *Detector) dispatch(ev segEvents) {
	if ev.started && d.cb.OnSpeechStart != nil {
		d.invoke("OnSpeechStart", d.cb.OnSpeechStart)
	}
	if !ev.ended {
		return
	}
	if ev.misfire {
		if d.cb.OnVADMisfire != nil {
			d.invoke("OnVADMisfire", d.cb.OnVADMisfire)
		}
		return
	}
	if d.cb.OnSpeechEnd != nil {
		seg := ev.segment
		d.invoke("OnSpeechEnd", func() { d.cb.OnSpeechEnd(seg) })
	}
}

// invoke calls fn and converts a panic into a log entry.
func (d *Detector) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}
