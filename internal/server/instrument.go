package server

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxsplit/voxsplit/internal/observe"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
)

// instrumentedClassifier wraps a classifier so every inference lands in the
// latency histogram and every degraded frame in the error counter. The
// detector stays metrics-free; instrumentation is a server concern.
type instrumentedClassifier struct {
	classifier.Classifier
	metrics *observe.Metrics
	attrs   metric.MeasurementOption
	name    string
}

func instrumentClassifier(cls classifier.Classifier, m *observe.Metrics, name string) classifier.Classifier {
	return &instrumentedClassifier{
		Classifier: cls,
		metrics:    m,
		attrs:      metric.WithAttributes(attribute.String("classifier", name)),
		name:       name,
	}
}

func (c *instrumentedClassifier) Classify(frame []float32) (classifier.Result, error) {
	start := time.Now()
	res, err := c.Classifier.Classify(frame)
	c.metrics.ClassifyDuration.Record(context.Background(), time.Since(start).Seconds(), c.attrs)
	if err != nil {
		c.metrics.RecordClassifierError(context.Background(), c.name)
	}
	return res, err
}
