package main

import (
	"fmt"
	"os"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	flacBlockSize     = 4096
	flacBitsPerSample = 16
)

// writeFLAC stores mono s16 samples as a FLAC file at path.
func writeFLAC(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: flacBitsPerSample,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		f.Close()
		return fmt.Errorf("flac encoder: %w", err)
	}

	for off := 0; off < len(samples); off += flacBlockSize {
		end := off + flacBlockSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := writeBlock(enc, samples[off:end], sampleRate); err != nil {
			enc.Close()
			f.Close()
			return err
		}
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flac close: %w", err)
	}
	return f.Close()
}

func writeBlock(enc *flac.Encoder, block []int16, sampleRate int) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	fr := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    uint32(sampleRate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: flacBitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := enc.WriteFrame(fr); err != nil {
		return fmt.Errorf("flac frame: %w", err)
	}
	return nil
}
