package config_test

import (
	"testing"

	"github.com/voxsplit/voxsplit/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Classifier: config.ClassifierConfig{
			Name:      "silero",
			ModelPath: "/opt/models/silero_vad.onnx",
		},
		VAD: config.VADConfig{
			PositiveSpeechThreshold: 0.5,
			MinSilenceFrames:        8,
		},
	}
}

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()
	if d := config.Diff(baseConfig(), baseConfig()); d.Changed() {
		t.Errorf("identical configs reported as changed: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if d.ServerChanged || d.VADChanged || d.ClassifierChanged {
		t.Errorf("unrelated changes reported: %+v", d)
	}
}

func TestDiff_VADTuning(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.VAD.MinSilenceFrames = 12

	d := config.Diff(old, new)
	if !d.VADChanged {
		t.Error("VAD tuning change not detected")
	}
	if d.ClassifierChanged || d.ServerChanged {
		t.Errorf("unrelated changes reported: %+v", d)
	}
}

func TestDiff_VADEnergyGate(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	gate := -40.0
	new.VAD.EnergyGateDB = &gate

	if d := config.Diff(old, new); !d.VADChanged {
		t.Error("energy gate change not detected")
	}

	// Same value behind different pointers is not a change.
	gate2 := -40.0
	old.VAD.EnergyGateDB = &gate2
	if d := config.Diff(old, new); d.VADChanged {
		t.Error("equal energy gates reported as changed")
	}
}

func TestDiff_Classifier(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Classifier.Threshold = 0.7

	if d := config.Diff(old, new); !d.ClassifierChanged {
		t.Error("classifier change not detected")
	}
}

func TestDiff_Server(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"

	if d := config.Diff(old, new); !d.ServerChanged {
		t.Error("server change not detected")
	}
}
