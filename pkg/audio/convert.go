// Package audio holds PCM conversion helpers shared by the ingest paths:
// s16le byte decoding, float32 encoding, channel downmix and linear-
// interpolation resampling. Everything operates on plain slices; the
// streaming state lives in the callers.
package audio

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks samples rejected at the package boundary: a PCM
// byte slice that is not a whole number of samples, or a channel layout the
// pipeline does not handle. The call fails; the stream stays usable.
var ErrInvalidInput = errors.New("audio: invalid input")

// Float32FromS16LE decodes little-endian int16 PCM into float32 samples
// normalized to [-1, 1). Division is by 32768 so the full int16 range maps
// strictly inside [-1, 1]. An odd byte count is a framing error.
func Float32FromS16LE(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM length %d, s16le needs 2 bytes per sample", ErrInvalidInput, len(pcm))
	}
	n := len(pcm) / 2
	if n == 0 {
		return nil, nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples, nil
}

// Int16FromS16LE decodes little-endian int16 PCM bytes into int16 samples.
// An odd byte count is a framing error.
func Int16FromS16LE(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM length %d, s16le needs 2 bytes per sample", ErrInvalidInput, len(pcm))
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return out, nil
}

// S16LEFromFloat32 encodes float32 samples as little-endian int16 PCM,
// clamping out-of-range values.
func S16LEFromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// Int16FromFloat32 converts float32 samples to int16 with clamping. Used
// by encoders that take int16 slices rather than raw bytes.
func Int16FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := int32(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Float32FromInt16 converts int16 samples to float32 normalized to [-1, 1).
func Float32FromInt16(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// StereoToMono averages the L and R samples of each interleaved stereo
// frame. Arithmetic is done in int32 and clamped to the int16 range.
func StereoToMono(pcm []int16) []int16 {
	frames := len(pcm) / 2
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		avg := (int32(pcm[2*i]) + int32(pcm[2*i+1])) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i] = int16(avg)
	}
	return out
}

// ResampleMono resamples mono int16 PCM from srcRate to dstRate using
// linear interpolation. Equal rates return the input unchanged. Linear
// interpolation is adequate here: the signal feeds a voice classifier, not
// a listener.
func ResampleMono(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	dstSamples := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < len(pcm) {
			s1 = pcm[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// ToMono16k normalizes decoded PCM of any common capture format (mono or
// interleaved stereo, arbitrary rate) to 16 kHz mono, the classifier input
// format. Downmix happens before resampling so the resampler runs on half
// the samples.
func ToMono16k(pcm []int16, srcRate, channels int) ([]int16, error) {
	switch channels {
	case 1:
	case 2:
		pcm = StereoToMono(pcm)
	default:
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidInput, channels)
	}
	return ResampleMono(pcm, srcRate, 16000), nil
}
