// Package config provides the configuration schema, loader, and classifier
// registry for the voxsplit server.
package config

import "github.com/voxsplit/voxsplit/pkg/vad"

// LogLevel controls log verbosity for the voxsplit server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from
// a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Classifier ClassifierConfig `yaml:"classifier"`
	VAD        VADConfig        `yaml:"vad"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxMessageBytes caps the size of a single inbound audio message.
	// Zero selects the 1 MiB default.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ClassifierConfig selects and configures the per-frame voice classifier.
// The Name field is used to look up the constructor in the [Registry].
type ClassifierConfig struct {
	// Name selects the registered classifier implementation
	// (e.g., "silero", "energy").
	Name string `yaml:"name"`

	// ModelPath is the ONNX model file for model-backed classifiers.
	ModelPath string `yaml:"model_path"`

	// LibraryPath overrides the ONNX Runtime shared library location.
	// Leave empty to use the platform default.
	LibraryPath string `yaml:"library_path"`

	// Threshold is the classifier-internal voice probability cutoff.
	// Zero uses the classifier's default.
	Threshold float32 `yaml:"threshold"`

	// Options holds classifier-specific values not covered by the standard
	// fields above (e.g., RMS levels for the energy classifier).
	Options map[string]any `yaml:"options"`
}

// VADConfig holds the segmentation tuning knobs. Zero values select the
// documented defaults; negative millisecond values disable a feature.
type VADConfig struct {
	// PositiveSpeechThreshold is the smoothed probability needed to enter
	// speech.
	PositiveSpeechThreshold float32 `yaml:"positive_speech_threshold"`

	// NegativeSpeechThreshold is the smoothed probability below which a
	// frame counts as silence while in speech.
	NegativeSpeechThreshold float32 `yaml:"negative_speech_threshold"`

	// MinSpeechFrames is the consecutive voiced frame count that opens a
	// segment.
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// MinSilenceFrames is the consecutive silent frame count that closes
	// a segment.
	MinSilenceFrames int `yaml:"min_silence_frames"`

	// ProbSmoothing is the EMA coefficient applied to raw probabilities.
	ProbSmoothing float32 `yaml:"prob_smoothing"`

	// NoSmoothing disables probability smoothing entirely.
	NoSmoothing bool `yaml:"no_smoothing"`

	// EnergyGateDB, when set, suppresses voice decisions on frames whose
	// energy is below this dBFS level.
	EnergyGateDB *float64 `yaml:"energy_gate_db"`

	// PreEmphasis is the pre-emphasis filter coefficient in [0, 0.97].
	PreEmphasis float32 `yaml:"pre_emphasis"`

	// PreSpeechPadMs is the audio retained from before voice onset.
	PreSpeechPadMs int `yaml:"pre_speech_pad_ms"`

	// PostSpeechPadMs is the trailing silence kept after the last voice.
	PostSpeechPadMs int `yaml:"post_speech_pad_ms"`

	// MinSpeechMs is the minimum segment duration; shorter segments are
	// reported as misfires and discarded.
	MinSpeechMs int `yaml:"min_speech_ms"`
}

// Detector converts the YAML block into the detector's configuration.
func (v VADConfig) Detector() vad.Config {
	return vad.Config{
		PositiveSpeechThreshold: v.PositiveSpeechThreshold,
		NegativeSpeechThreshold: v.NegativeSpeechThreshold,
		MinSpeechFrames:         v.MinSpeechFrames,
		MinSilenceFrames:        v.MinSilenceFrames,
		ProbSmoothing:           v.ProbSmoothing,
		NoSmoothing:             v.NoSmoothing,
		EnergyGateDB:            v.EnergyGateDB,
		PreEmphasis:             v.PreEmphasis,
		PreSpeechPadMs:          v.PreSpeechPadMs,
		PostSpeechPadMs:         v.PostSpeechPadMs,
		MinSpeechMs:             v.MinSpeechMs,
	}
}
