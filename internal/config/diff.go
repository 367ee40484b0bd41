package config

// ConfigDiff describes what changed between two configs. Only settings that
// can be applied between attempts without rebuilding the pipeline are
// tracked; audio capture and the ASR stack need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DefaultModeChanged bool
	NewDefaultMode     string

	// AliasesChanged reports a flip of recognition.letter_name_aliases.
	AliasesChanged bool

	// ModesChanged is true if any mode was added, removed, or retuned.
	ModesChanged bool
	ModeChanges  []ModeDiff

	// WordsChanged reports a new word list path.
	WordsChanged bool
	NewWordsPath string
}

// Empty reports whether the diff carries no applicable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DefaultModeChanged && !d.AliasesChanged &&
		!d.ModesChanged && !d.WordsChanged
}

// ModeDiff describes what changed for a single recognition mode.
type ModeDiff struct {
	Name string

	// DurationsChanged covers the max, silence, and min-speech windows.
	DurationsChanged bool

	// ThresholdsChanged covers the voice and silence dB thresholds.
	ThresholdsChanged bool

	// PolicyChanged covers the strict_accept flag.
	PolicyChanged bool

	Added   bool
	Removed bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if old.Recognition.DefaultMode != new.Recognition.DefaultMode {
		d.DefaultModeChanged = true
		d.NewDefaultMode = new.Recognition.DefaultMode
	}

	if old.Recognition.LetterNameAliases != new.Recognition.LetterNameAliases {
		d.AliasesChanged = true
	}

	// Detect retuned and removed modes.
	for name, oldMode := range old.Recognition.Modes {
		newMode, exists := new.Recognition.Modes[name]
		if !exists {
			d.ModeChanges = append(d.ModeChanges, ModeDiff{Name: name, Removed: true})
			d.ModesChanged = true
			continue
		}
		md := diffMode(name, oldMode, newMode)
		if md.DurationsChanged || md.ThresholdsChanged || md.PolicyChanged {
			d.ModeChanges = append(d.ModeChanges, md)
			d.ModesChanged = true
		}
	}

	// Detect added modes.
	for name := range new.Recognition.Modes {
		if _, exists := old.Recognition.Modes[name]; !exists {
			d.ModeChanges = append(d.ModeChanges, ModeDiff{Name: name, Added: true})
			d.ModesChanged = true
		}
	}

	if old.Words.Path != new.Words.Path {
		d.WordsChanged = true
		d.NewWordsPath = new.Words.Path
	}

	return d
}

// diffMode compares two mode configs with the same name.
func diffMode(name string, old, new ModeConfig) ModeDiff {
	md := ModeDiff{Name: name}

	if old.MaxDurationSeconds != new.MaxDurationSeconds ||
		old.SilenceDurationSeconds != new.SilenceDurationSeconds ||
		old.MinSpeechDurationSeconds != new.MinSpeechDurationSeconds {
		md.DurationsChanged = true
	}

	if old.VoiceThresholdDB != new.VoiceThresholdDB ||
		old.SilenceThresholdDB != new.SilenceThresholdDB {
		md.ThresholdsChanged = true
	}

	if old.StrictAccept != new.StrictAccept {
		md.PolicyChanged = true
	}

	return md
}
