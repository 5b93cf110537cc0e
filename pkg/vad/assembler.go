package vad

// FrameAssembler slices an unbounded sample stream into fixed-size frames.
// Pushes may have any length and any alignment; the undersized tail of a
// push is held until the next one. Frames are emitted in arrival order,
// never duplicated, each as a freshly allocated copy so that downstream
// buffering can retain them without aliasing the caller's slice.
//
// Not safe for concurrent use.
type FrameAssembler struct {
	rem []float32
}

// Push appends samples to the stream and returns all complete frames now
// available, oldest first. The returned slices are owned by the caller. A
// nil or empty push returns nil.
func (a *FrameAssembler) Push(samples []float32) [][]float32 {
	if len(samples) == 0 {
		return nil
	}

	// Fast path: no remainder and an exact multiple of the frame size.
	var stream []float32
	if len(a.rem) == 0 {
		stream = samples
	} else {
		stream = append(a.rem, samples...)
	}

	n := len(stream) / FrameSize
	if n == 0 {
		a.setRemainder(stream)
		return nil
	}

	frames := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		frame := make([]float32, FrameSize)
		copy(frame, stream[i*FrameSize:(i+1)*FrameSize])
		frames = append(frames, frame)
	}
	a.setRemainder(stream[n*FrameSize:])
	return frames
}

// Flush zero-pads the held remainder to exactly one frame and returns it,
// clearing the remainder. Returns nil when no samples are pending, so a
// second Flush with no intervening Push emits nothing.
func (a *FrameAssembler) Flush() []float32 {
	if len(a.rem) == 0 {
		return nil
	}
	frame := make([]float32, FrameSize)
	copy(frame, a.rem)
	a.rem = a.rem[:0]
	return frame
}

// Pending returns the number of samples currently held back.
func (a *FrameAssembler) Pending() int { return len(a.rem) }

// setRemainder stores tail into the assembler-owned remainder buffer. The
// tail may alias the caller's push, so it is always copied.
func (a *FrameAssembler) setRemainder(tail []float32) {
	if cap(a.rem) < FrameSize {
		a.rem = make([]float32, 0, FrameSize)
	}
	a.rem = a.rem[:len(tail)]
	copy(a.rem, tail)
}
