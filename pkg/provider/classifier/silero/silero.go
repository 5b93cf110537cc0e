// Package silero implements the classifier interface on top of the Silero
// VAD v5 model running under ONNX Runtime.
//
// The model scores 512-sample windows (32 ms at 16 kHz) while the pipeline
// delivers 256-sample frames, so the classifier buffers frames pairwise:
// every second frame triggers an inference and the probability is held for
// the frame in between. The recurrent hidden state is carried across
// inferences and cleared by Reset.
package silero

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
)

const (
	sampleRate = 16000

	// windowSize is the number of samples per inference. Silero VAD v5 at
	// 16 kHz requires exactly 512.
	windowSize = 512

	// stateSize is the hidden state dimension per layer; the combined
	// state tensor has shape [2, 1, 128].
	stateSize = 128
)

// DefaultThreshold is the probability at or above which a window is
// flagged as voice.
const DefaultThreshold float32 = 0.5

// ErrClosed is returned by Classify after Close.
var ErrClosed = errors.New("silero: classifier closed")

// The ONNX Runtime environment is process-global; initialize it once and
// surface the failure to every subsequent New call.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Config configures a Silero classifier.
type Config struct {
	// ModelPath is the filesystem path of the Silero VAD v5 ONNX model.
	ModelPath string

	// LibraryPath is the path of the ONNX Runtime shared library. Empty
	// uses the onnxruntime_go platform default.
	LibraryPath string

	// Threshold is the voice probability cutoff. Zero selects
	// DefaultThreshold.
	Threshold float32
}

// Classifier runs Silero VAD inference. Not safe for concurrent use; the
// detector calls it from a single goroutine.
type Classifier struct {
	session *ort.AdvancedSession

	// Tensors are allocated once and reused between calls.
	inputTensor  *ort.Tensor[float32] // [1, 512]
	stateTensor  *ort.Tensor[float32] // [2, 1, 128]
	srTensor     *ort.Tensor[int64]   // scalar
	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]

	// window accumulates frames until a full inference window is ready.
	window []float32

	// lastProb is held between inferences so every frame gets a score.
	lastProb float32

	threshold float32
	closed    bool
}

// New creates a Classifier, initializing the ONNX Runtime environment on
// first use and loading the model from cfg.ModelPath.
func New(cfg Config) (*Classifier, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("silero: model path required")
	}

	ortInitOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: init onnxruntime: %w", ortInitErr)
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	c := &Classifier{
		window:    make([]float32, 0, windowSize),
		threshold: threshold,
	}
	if err := c.allocate(cfg.ModelPath); err != nil {
		c.destroy()
		return nil, err
	}
	return c, nil
}

func (c *Classifier) allocate(modelPath string) error {
	var err error
	if c.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, windowSize)); err != nil {
		return fmt.Errorf("silero: create input tensor: %w", err)
	}
	if c.stateTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize)); err != nil {
		return fmt.Errorf("silero: create state tensor: %w", err)
	}
	if c.srTensor, err = ort.NewTensor(ort.NewShape(1), []int64{sampleRate}); err != nil {
		return fmt.Errorf("silero: create sr tensor: %w", err)
	}
	if c.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return fmt.Errorf("silero: create output tensor: %w", err)
	}
	if c.stateNTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize)); err != nil {
		return fmt.Errorf("silero: create stateN tensor: %w", err)
	}

	// onnxruntime_go does not guarantee zeroed tensor memory.
	clear(c.stateTensor.GetData())
	clear(c.stateNTensor.GetData())

	c.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{c.inputTensor, c.stateTensor, c.srTensor},
		[]ort.Value{c.outputTensor, c.stateNTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("silero: create session: %w", err)
	}
	return nil
}

// Classify buffers frame and runs inference once a full model window has
// accumulated. Frames that do not complete a window are scored with the
// previous window's probability.
func (c *Classifier) Classify(frame []float32) (classifier.Result, error) {
	if c.closed {
		return classifier.Result{}, ErrClosed
	}

	c.window = append(c.window, frame...)
	for len(c.window) >= windowSize {
		prob, err := c.infer(c.window[:windowSize])
		if err != nil {
			return classifier.Result{}, err
		}
		c.window = c.window[:copy(c.window, c.window[windowSize:])]
		c.lastProb = prob
	}

	return classifier.Result{
		Probability: c.lastProb,
		IsVoice:     c.lastProb >= c.threshold,
	}, nil
}

// infer runs a single inference on exactly one window and carries the
// recurrent state forward.
func (c *Classifier) infer(window []float32) (float32, error) {
	copy(c.inputTensor.GetData(), window)
	if err := c.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	copy(c.stateTensor.GetData(), c.stateNTensor.GetData())
	return c.outputTensor.GetData()[0], nil
}

// Reset clears the recurrent hidden state, the partial window and the held
// probability, making the classifier ready for an unrelated stream.
func (c *Classifier) Reset() {
	if c.closed {
		return
	}
	clear(c.stateTensor.GetData())
	c.window = c.window[:0]
	c.lastProb = 0
}

// Close releases the session and all tensors. Idempotent.
func (c *Classifier) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.destroy()
	return nil
}

func (c *Classifier) destroy() {
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{c.inputTensor, c.stateTensor, c.outputTensor, c.stateNTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	c.inputTensor, c.stateTensor, c.outputTensor, c.stateNTensor = nil, nil, nil, nil
	if c.srTensor != nil {
		c.srTensor.Destroy()
		c.srTensor = nil
	}
}

var _ classifier.Classifier = (*Classifier)(nil)
