package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidClassifierNames lists the classifier names shipped with the server.
// Used by [Validate] to warn about likely typos; unknown names are not an
// error because third-party classifiers register at runtime.
var ValidClassifierNames = []string{"silero", "energy", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes %d must not be negative", cfg.Server.MaxMessageBytes))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Classifier
	if name := cfg.Classifier.Name; name != "" && !slices.Contains(ValidClassifierNames, name) {
		slog.Warn("unknown classifier name, may be a typo or third-party classifier",
			"name", name,
			"known", ValidClassifierNames,
		)
	}
	if cfg.Classifier.Name == "silero" && cfg.Classifier.ModelPath == "" {
		errs = append(errs, errors.New("classifier.model_path is required when classifier.name is silero"))
	}
	if t := cfg.Classifier.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("classifier.threshold %.2f is out of range [0, 1]", t))
	}

	// VAD thresholds. Inverted thresholds are swapped downstream with a
	// warning rather than rejected here.
	if t := cfg.VAD.PositiveSpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.positive_speech_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.VAD.NegativeSpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.negative_speech_threshold %.2f is out of range [0, 1]", t))
	}
	if a := cfg.VAD.ProbSmoothing; a < 0 || a > 1 {
		errs = append(errs, fmt.Errorf("vad.prob_smoothing %.2f is out of range [0, 1]", a))
	}
	if cfg.VAD.MinSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_frames %d must not be negative", cfg.VAD.MinSpeechFrames))
	}
	if cfg.VAD.MinSilenceFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence_frames %d must not be negative", cfg.VAD.MinSilenceFrames))
	}
	if pe := cfg.VAD.PreEmphasis; pe < 0 || pe > 0.97 {
		errs = append(errs, fmt.Errorf("vad.pre_emphasis %.2f is out of range [0, 0.97]", pe))
	}
	if g := cfg.VAD.EnergyGateDB; g != nil && *g > 0 {
		errs = append(errs, fmt.Errorf("vad.energy_gate_db %.1f must not be positive (dBFS levels are at most 0)", *g))
	}

	return errors.Join(errs...)
}
