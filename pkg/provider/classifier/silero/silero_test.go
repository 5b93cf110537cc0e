package silero_test

import (
	"testing"

	"github.com/voxsplit/voxsplit/pkg/provider/classifier/silero"
)

func TestNew_RequiresModelPath(t *testing.T) {
	if _, err := silero.New(silero.Config{}); err == nil {
		t.Fatal("expected error for empty model path")
	}
}
