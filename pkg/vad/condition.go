package vad

import "math"

// rmsEpsilon keeps the dBFS conversion defined for all-zero frames.
const rmsEpsilon = 1e-10

// Conditioner derives the classifier input from a raw frame and evaluates
// the energy gate. The two computations are independent: the gate always
// sees the unmodified raw samples, while the classifier sees a filtered
// copy. Pre-emphasis carries the true previous raw sample across frame and
// push boundaries.
//
// Not safe for concurrent use.
type Conditioner struct {
	preEmphasis float32
	gateDB      *float64

	// prev is the last raw sample of the previous frame.
	prev float32
}

// NewConditioner returns a Conditioner with the given pre-emphasis
// coefficient (0 disables) and energy gate threshold in dBFS (nil disables).
func NewConditioner(preEmphasis float32, gateDB *float64) *Conditioner {
	return &Conditioner{preEmphasis: preEmphasis, gateDB: gateDB}
}

// Process returns the classifier input for frame and whether the energy
// gate is open. With pre-emphasis disabled the input is the frame itself
// (no copy); otherwise it is a filtered copy clipped to [-1, 1].
func (c *Conditioner) Process(frame []float32) (input []float32, gateOpen bool) {
	gateOpen = c.gateOpen(frame)

	if c.preEmphasis == 0 {
		if n := len(frame); n > 0 {
			c.prev = frame[n-1]
		}
		return frame, gateOpen
	}

	out := make([]float32, len(frame))
	prev := c.prev
	for i, x := range frame {
		y := x - c.preEmphasis*prev
		if y > 1 {
			y = 1
		} else if y < -1 {
			y = -1
		}
		out[i] = y
		prev = x
	}
	c.prev = prev
	return out, gateOpen
}

// Reset clears the carried previous sample.
func (c *Conditioner) Reset() { c.prev = 0 }

// gateOpen reports whether the frame passes the energy gate. A disabled
// gate is always open.
func (c *Conditioner) gateOpen(frame []float32) bool {
	if c.gateDB == nil {
		return true
	}
	return FrameEnergyDB(frame) >= *c.gateDB
}

// FrameEnergyDB returns the RMS level of frame in dBFS. An empty or silent
// frame reports a very low level (about -200 dBFS), never -Inf.
func FrameEnergyDB(frame []float32) float64 {
	if len(frame) == 0 {
		return 20 * math.Log10(rmsEpsilon)
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	return 20 * math.Log10(rms+rmsEpsilon)
}
