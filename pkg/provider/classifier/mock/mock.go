// Package mock provides a test double for the classifier package.
//
// Use Classifier to script per-frame (probability, flag) sequences and
// inspect the frames that were submitted:
//
//	cls := &mock.Classifier{
//	    Script: []classifier.Result{
//	        {Probability: 0.9, IsVoice: true},
//	        {Probability: 0.1, IsVoice: false},
//	    },
//	}
//
// When the script is exhausted the last entry repeats; an empty script
// returns the zero Result (non-voice).
package mock

import (
	"errors"
	"sync"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
)

// ErrClosed is returned by Classify after Close.
var ErrClosed = errors.New("mock: classifier closed")

// ClassifyCall records a single invocation of Classify.
type ClassifyCall struct {
	// Frame is a copy of the samples passed to Classify.
	Frame []float32
}

// Classifier is a scripted implementation of classifier.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Script is the sequence of results returned by successive Classify
	// calls. The last entry repeats once the script is exhausted.
	Script []classifier.Result

	// ErrAt maps a zero-based call index to an error returned for that
	// call. The scripted result for that index is discarded.
	ErrAt map[int]error

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// CloseErr, if non-nil, is returned by the first Close call.
	CloseErr error

	// --- Call records ---

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
}

// Classify records the call and returns the next scripted result.
func (c *Classifier) Classify(frame []float32) (classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return classifier.Result{}, ErrClosed
	}

	idx := len(c.ClassifyCalls)
	cp := make([]float32, len(frame))
	copy(cp, frame)
	c.ClassifyCalls = append(c.ClassifyCalls, ClassifyCall{Frame: cp})

	if c.ClassifyErr != nil {
		return classifier.Result{}, c.ClassifyErr
	}
	if err, ok := c.ErrAt[idx]; ok {
		return classifier.Result{}, err
	}
	if len(c.Script) == 0 {
		return classifier.Result{}, nil
	}
	if idx >= len(c.Script) {
		idx = len(c.Script) - 1
	}
	return c.Script[idx], nil
}

// Reset records the call by incrementing ResetCallCount.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResetCallCount++
}

// Close records the call and returns CloseErr on the first invocation only.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	if c.closed {
		return nil
	}
	c.closed = true
	return c.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (c *Classifier) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCalls = nil
	c.ResetCallCount = 0
	c.CloseCallCount = 0
}

// Ensure Classifier implements classifier.Classifier at compile time.
var _ classifier.Classifier = (*Classifier)(nil)
