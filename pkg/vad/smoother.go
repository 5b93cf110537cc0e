package vad

// smoother is an exponential moving average over successive raw voice
// probabilities: smoothed = α·prev + (1−α)·raw. State starts at 0 and
// persists for the whole stream; α = 0 passes raw values through.
type smoother struct {
	alpha float32
	value float32
}

// update folds raw into the average and returns the new smoothed value.
func (s *smoother) update(raw float32) float32 {
	s.value = s.alpha*s.value + (1-s.alpha)*raw
	return s.value
}
