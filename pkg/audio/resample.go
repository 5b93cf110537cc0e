package audio

// Resampler converts a continuous mono int16 stream from one rate to
// another with linear interpolation, carrying the fractional source
// position and the last input sample across calls. Feeding it a stream
// chunk by chunk yields the same samples as resampling the whole stream at
// once, which [ResampleMono] cannot guarantee at chunk boundaries.
//
// Not safe for concurrent use; each stream owns one Resampler.
type Resampler struct {
	srcRate int
	dstRate int

	// pos is the source position of the next output sample, relative to
	// the carried sample (index 0 once prev is set).
	pos     float64
	prev    int16
	hasPrev bool
}

// NewResampler creates a Resampler from srcRate to dstRate. Non-positive
// or equal rates produce a pass-through.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{srcRate: srcRate, dstRate: dstRate}
}

// Process resamples one chunk of the stream. The returned slice is freshly
// allocated unless the Resampler is a pass-through, in which case the input
// is returned unchanged. A trailing fraction of a sample stays buffered for
// the next call.
func (r *Resampler) Process(in []int16) []int16 {
	if r.srcRate <= 0 || r.dstRate <= 0 || r.srcRate == r.dstRate {
		return in
	}
	if len(in) == 0 {
		return nil
	}

	src := in
	if r.hasPrev {
		src = make([]int16, 0, len(in)+1)
		src = append(src, r.prev)
		src = append(src, in...)
	}

	step := float64(r.srcRate) / float64(r.dstRate)
	out := make([]int16, 0, int(float64(len(src))/step)+1)
	pos := r.pos
	for {
		i := int(pos)
		if i >= len(src)-1 {
			break
		}
		frac := pos - float64(i)
		s := float64(src[i])*(1-frac) + float64(src[i+1])*frac
		out = append(out, int16(s))
		pos += step
	}

	// The last sample becomes index 0 of the next call's source.
	r.prev = src[len(src)-1]
	r.hasPrev = true
	r.pos = pos - float64(len(src)-1)
	return out
}
