package vad

// frameRing is a bounded FIFO of the most recent frames, used to seed a
// segment with pre-speech context at voice onset. Zero capacity is valid
// and holds nothing. Frames are stored by reference; the caller hands over
// ownership when pushing.
type frameRing struct {
	frames [][]float32
	idx    int // next write position
	count  int // number of valid entries
}

func newFrameRing(capacity int) *frameRing {
	return &frameRing{frames: make([][]float32, capacity)}
}

// push stores frame, evicting the oldest entry when full.
func (r *frameRing) push(frame []float32) {
	if len(r.frames) == 0 {
		return
	}
	r.frames[r.idx] = frame
	r.idx = (r.idx + 1) % len(r.frames)
	if r.count < len(r.frames) {
		r.count++
	}
}

// appendTo appends the held frames oldest to newest onto dst and returns it.
func (r *frameRing) appendTo(dst []float32) []float32 {
	if r.count == 0 {
		return dst
	}
	start := (r.idx - r.count + len(r.frames)) % len(r.frames)
	for i := 0; i < r.count; i++ {
		dst = append(dst, r.frames[(start+i)%len(r.frames)]...)
	}
	return dst
}

// reset drops all held frames so they can be collected.
func (r *frameRing) reset() {
	for i := range r.frames {
		r.frames[i] = nil
	}
	r.idx = 0
	r.count = 0
}

// segEvents reports what a single processed frame caused. At most one of
// started/ended/misfire per transition; started and ended never coincide.
type segEvents struct {
	started bool
	ended   bool
	misfire bool
	segment Segment // set when ended
}

// segmenter is the segmentation state machine. Pure per-frame logic: no
// classifier, no callbacks, no I/O. States are Silence (initial, inSpeech
// false) and Speech, with run-length counters that debounce both edges and
// a post-pad countdown that starts at the first silent frame after voice.
type segmenter struct {
	cfg settings

	ring *frameRing

	inSpeech   bool
	voiceRun   int
	silenceRun int

	// postPad counts down the trailing silence frames still owed to the
	// active segment. Armed at the first silent frame after voice; a brief
	// voice resumption does not reset a partially spent countdown.
	postPad int

	active []float32
}

func newSegmenter(cfg settings) *segmenter {
	return &segmenter{
		cfg:  cfg,
		ring: newFrameRing(cfg.prePadFrames),
	}
}

// process advances the state machine by one frame. The frame's ownership
// passes to the segmenter. isVoice is the fully gated per-frame decision
// (classifier flag AND gate open AND smoothed probability over the
// hysteresis threshold).
func (s *segmenter) process(frame []float32, isVoice bool) segEvents {
	if !s.inSpeech {
		return s.processSilence(frame, isVoice)
	}
	return s.processSpeech(frame, isVoice)
}

// threshold returns the hysteresis threshold for the current state: easier
// to stay in speech than to enter it.
func (s *segmenter) threshold() float32 {
	if s.inSpeech {
		return s.cfg.negative
	}
	return s.cfg.positive
}

func (s *segmenter) processSilence(frame []float32, isVoice bool) segEvents {
	// Every frame seen in silence is pre-pad candidate context, voice
	// frames of a not-yet-confirmed run included, so the triggering frames
	// end up inside the seeded segment.
	s.ring.push(frame)

	if !isVoice {
		s.voiceRun = 0
		s.silenceRun++
		return segEvents{}
	}

	s.voiceRun++
	s.silenceRun = 0
	if s.voiceRun < s.cfg.minSpeechFrames {
		return segEvents{}
	}

	// Silence → Speech: seed the segment with the ring content.
	s.inSpeech = true
	s.postPad = 0
	s.active = s.ring.appendTo(s.active[:0])
	s.ring.reset()
	return segEvents{started: true}
}

func (s *segmenter) processSpeech(frame []float32, isVoice bool) segEvents {
	// Silence during and after speech is part of the segment's trailing
	// context, so the frame is appended either way.
	s.active = append(s.active, frame...)

	if isVoice {
		s.voiceRun++
		s.silenceRun = 0
		return segEvents{}
	}

	s.voiceRun = 0
	s.silenceRun++
	if s.silenceRun == 1 && s.postPad == 0 {
		s.postPad = s.cfg.postPadFrames
	}
	if s.postPad > 0 {
		s.postPad--
	}

	if s.silenceRun >= s.cfg.minSilenceFrames && s.postPad <= 0 {
		return s.finalize()
	}
	return segEvents{}
}

// finalize closes the active segment: Speech → Silence, counters cleared,
// and the accumulated audio either emitted or discarded as a misfire.
func (s *segmenter) finalize() segEvents {
	seg := Segment{Samples: s.active}
	s.active = nil
	s.inSpeech = false
	s.voiceRun = 0
	s.silenceRun = 0
	s.postPad = 0

	if seg.DurationMs() < s.cfg.minSpeechMs {
		return segEvents{ended: true, misfire: true}
	}
	return segEvents{ended: true, segment: seg}
}
