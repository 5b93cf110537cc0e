package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
)

// ErrClassifierNotRegistered is returned by [Registry.Create] when no
// factory has been registered under the requested name.
var ErrClassifierNotRegistered = errors.New("config: classifier not registered")

// Registry maps classifier names to their constructor functions. It is
// safe for concurrent use. The built-in classifiers are registered by the
// application wiring; third-party classifiers can register alongside them.
type Registry struct {
	mu          sync.RWMutex
	classifiers map[string]func(ClassifierConfig) (classifier.Classifier, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		classifiers: make(map[string]func(ClassifierConfig) (classifier.Classifier, error)),
	}
}

// Register registers a classifier factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(ClassifierConfig) (classifier.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers[name] = factory
}

// Create instantiates a classifier using the factory registered under
// entry.Name. Returns [ErrClassifierNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) Create(entry ClassifierConfig) (classifier.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.classifiers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrClassifierNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered classifier names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classifiers))
	for name := range r.classifiers {
		names = append(names, name)
	}
	return names
}
