package config

// ConfigDiff describes what changed between two configs. The watcher callback
// uses it to decide what can be applied live (log level) and what needs a
// restart (corpus path, tuning, storage wiring).
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CorpusChanged is true when the corpus path moved. The server captures
	// the path at startup; corpus file content is re-read per request, but a
	// new path needs a restart.
	CorpusChanged bool

	// TuningChanged is true when VAD or game tuning changed. Tuning is
	// published to clients at session start, so running sessions keep their
	// old values.
	TuningChanged bool

	// StorageChanged is true when the storage backend or its settings
	// changed. Storage is wired once at startup; a restart is required.
	StorageChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Corpus.Path != new.Corpus.Path {
		d.CorpusChanged = true
	}
	if old.VAD != new.VAD || old.Game != new.Game {
		d.TuningChanged = true
	}
	if old.Storage != new.Storage {
		d.StorageChanged = true
	}
	return d
}
