package energy_test

import (
	"errors"
	"testing"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier/energy"
)

func frame(amplitude float32) []float32 {
	f := make([]float32, 256)
	for i := range f {
		f[i] = amplitude
	}
	return f
}

func TestClassify_Hysteresis(t *testing.T) {
	c := energy.New(energy.Config{})

	// Quiet frame stays silent.
	res, err := c.Classify(frame(0.001))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsVoice {
		t.Error("quiet frame flagged as voice")
	}

	// Loud frame flips to voiced.
	res, err = c.Classify(frame(0.1))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsVoice {
		t.Error("loud frame not flagged as voice")
	}
	if res.Probability != 1 {
		t.Errorf("probability = %v, want 1", res.Probability)
	}

	// A level inside the hysteresis band keeps the voiced state.
	res, err = c.Classify(frame(0.01))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsVoice {
		t.Error("mid-band frame dropped the voiced state")
	}

	// Below the silence level flips back.
	res, err = c.Classify(frame(0.001))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsVoice {
		t.Error("sub-silence frame kept the voiced state")
	}
}

func TestClassify_ProbabilityBand(t *testing.T) {
	c := energy.New(energy.Config{SpeechRMS: 0.02, SilenceRMS: 0.01})

	res, err := c.Classify(frame(0.015)) // midpoint of the band
	if err != nil {
		t.Fatal(err)
	}
	if res.Probability < 0.45 || res.Probability > 0.55 {
		t.Errorf("midpoint probability = %v, want ~0.5", res.Probability)
	}

	res, err = c.Classify(frame(0.001))
	if err != nil {
		t.Fatal(err)
	}
	if res.Probability != 0 {
		t.Errorf("sub-band probability = %v, want 0", res.Probability)
	}
}

func TestNew_SwapsInvertedLevels(t *testing.T) {
	c := energy.New(energy.Config{SpeechRMS: 0.01, SilenceRMS: 0.02})

	// With the swap applied, 0.02 is the speech level.
	res, err := c.Classify(frame(0.015))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsVoice {
		t.Error("frame below the effective speech level flagged as voice")
	}
}

func TestReset(t *testing.T) {
	c := energy.New(energy.Config{})
	if _, err := c.Classify(frame(0.1)); err != nil {
		t.Fatal(err)
	}
	c.Reset()

	res, err := c.Classify(frame(0.01)) // mid-band
	if err != nil {
		t.Fatal(err)
	}
	if res.IsVoice {
		t.Error("mid-band frame voiced after Reset")
	}
}

func TestClose(t *testing.T) {
	c := energy.New(energy.Config{})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Classify(frame(0.1)); !errors.Is(err, energy.ErrClosed) {
		t.Errorf("Classify after Close = %v, want ErrClosed", err)
	}
}

func TestClassify_EmptyFrame(t *testing.T) {
	c := energy.New(energy.Config{})
	if _, err := c.Classify(nil); err == nil {
		t.Error("empty frame accepted")
	}
}
