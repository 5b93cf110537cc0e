package config

import "reflect"

// ConfigDiff describes what changed between two configs and how disruptive
// applying the change would be. VAD tuning applies to sessions opened after
// the reload; classifier and server changes need a rebuild or restart.
type ConfigDiff struct {
	// VADChanged is true when any segmentation tuning value differs. New
	// sessions pick the new values up; open sessions keep the old ones.
	VADChanged bool

	// ClassifierChanged is true when the classifier selection or its
	// settings differ. Takes effect only after the classifier is rebuilt.
	ClassifierChanged bool

	// ServerChanged is true when the listen address or TLS settings
	// differ. Requires a restart.
	ServerChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.VADChanged || d.ClassifierChanged || d.ServerChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.MaxMessageBytes != new.Server.MaxMessageBytes ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.ServerChanged = true
	}

	if !classifierEqual(old.Classifier, new.Classifier) {
		d.ClassifierChanged = true
	}

	if !vadEqual(old.VAD, new.VAD) {
		d.VADChanged = true
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func classifierEqual(a, b ClassifierConfig) bool {
	if a.Name != b.Name || a.ModelPath != b.ModelPath ||
		a.LibraryPath != b.LibraryPath || a.Threshold != b.Threshold {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func vadEqual(a, b VADConfig) bool {
	if a.EnergyGateDB == nil || b.EnergyGateDB == nil {
		if a.EnergyGateDB != b.EnergyGateDB {
			return false
		}
	} else if *a.EnergyGateDB != *b.EnergyGateDB {
		return false
	}
	// Compare the remaining fields by value with the pointers masked.
	am, bm := a, b
	am.EnergyGateDB, bm.EnergyGateDB = nil, nil
	return am == bm
}
