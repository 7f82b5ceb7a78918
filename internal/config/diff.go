package config

// Diff describes what changed between two configs. Only fields that are safe
// to apply without restarting the pipeline are tracked: the ASR backend, the
// vault location, and the listener address all require a restart.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when any detector tuning field changed. The new
	// tuning takes effect at the next recording session; an in-flight
	// session keeps the detector it started with.
	VADChanged bool
	NewVAD     VADConfig

	// StopTimeoutChanged is true when record.stop_timeout_seconds changed.
	StopTimeoutChanged bool
	NewStopTimeout     RecordConfig

	// PolishChanged is true when the polish stage was toggled or retuned.
	PolishChanged bool
	NewPolish     PolishConfig
}

// Any reports whether the diff carries at least one change.
func (d Diff) Any() bool {
	return d.LogLevelChanged || d.VADChanged || d.StopTimeoutChanged || d.PolishChanged
}

// Compare returns what changed between old and new.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}
	if old.Record != new.Record {
		d.StopTimeoutChanged = true
		d.NewStopTimeout = new.Record
	}
	if old.Polish != new.Polish {
		d.PolishChanged = true
		d.NewPolish = new.Polish
	}
	return d
}
