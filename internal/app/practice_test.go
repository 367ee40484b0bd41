package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/whizbee/spellcast/internal/config"
	"github.com/whizbee/spellcast/internal/recognizer"
	"github.com/whizbee/spellcast/internal/recorder"
	"github.com/whizbee/spellcast/internal/words"
	"github.com/whizbee/spellcast/pkg/audio/mock"
	asrmock "github.com/whizbee/spellcast/pkg/provider/asr/mock"
)

// newTestPractice builds a Practice on mock capture, playing the builtin
// list with cfg's default mode.
func newTestPractice(t *testing.T, cfg *config.Config, pinned bool) *Practice {
	t.Helper()
	mode, ok := modeFromConfig(cfg, cfg.Recognition.DefaultMode)
	if !ok {
		t.Fatalf("default mode %q not configured", cfg.Recognition.DefaultMode)
	}
	rcg := recognizer.New(recorder.New(&mock.Source{}), &asrmock.Transcriber{})
	return NewPractice(PracticeConfig{
		Recognizer: rcg,
		List:       words.Builtin(),
		Mode:       mode,
		ModePinned: pinned,
		Output:     &bytes.Buffer{},
	})
}

func TestPractice_ReloadRetunesMode(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, false)

	updated := config.Default()
	m := updated.Recognition.Modes["standard"]
	m.MaxDurationSeconds = 20
	m.StrictAccept = true
	updated.Recognition.Modes["standard"] = m

	p.QueueReload(updated, config.Diff(old, updated))
	p.applyPending()

	mode := p.Mode()
	if got, want := mode.Record.MaxDuration, 20*time.Second; got != want {
		t.Errorf("MaxDuration = %s, want %s", got, want)
	}
	if !mode.StrictAccept {
		t.Error("StrictAccept = false, want true after reload")
	}
}

func TestPractice_ReloadFollowsDefaultMode(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, false)

	updated := config.Default()
	updated.Recognition.DefaultMode = "patient"

	p.QueueReload(updated, config.Diff(old, updated))
	p.applyPending()

	mode := p.Mode()
	if mode.Name != "patient" {
		t.Fatalf("Mode().Name = %q, want %q", mode.Name, "patient")
	}
	if got, want := mode.Record.MaxDuration, 60*time.Second; got != want {
		t.Errorf("MaxDuration = %s, want %s", got, want)
	}
}

func TestPractice_PinnedModeIgnoresDefaultChange(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, true)

	updated := config.Default()
	updated.Recognition.DefaultMode = "patient"

	p.QueueReload(updated, config.Diff(old, updated))
	p.applyPending()

	mode := p.Mode()
	if mode.Name != "standard" {
		t.Fatalf("Mode().Name = %q, want pinned %q", mode.Name, "standard")
	}
	if got, want := mode.Record.MaxDuration, 45*time.Second; got != want {
		t.Errorf("MaxDuration = %s, want %s", got, want)
	}
}

func TestPractice_ReloadKeepsRemovedMode(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, true)

	updated := config.Default()
	updated.Recognition.DefaultMode = "patient"
	delete(updated.Recognition.Modes, "standard")

	p.QueueReload(updated, config.Diff(old, updated))
	p.applyPending()

	mode := p.Mode()
	if mode.Name != "standard" {
		t.Fatalf("Mode().Name = %q, want %q kept", mode.Name, "standard")
	}
	if got, want := mode.Record.MaxDuration, 45*time.Second; got != want {
		t.Errorf("MaxDuration = %s, want previous %s kept", got, want)
	}
}

func TestPractice_ReloadSwapsWordList(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, false)

	path := filepath.Join(t.TempDir(), "words.yaml")
	list := "name: Ocean words\nwords:\n  - word: crab\n    hint: It walks sideways.\n  - word: wave\n"
	if err := os.WriteFile(path, []byte(list), 0o644); err != nil {
		t.Fatal(err)
	}

	updated := config.Default()
	updated.Words.Path = path

	p.QueueReload(updated, config.Diff(old, updated))
	p.applyPending()

	entry, total, ok := p.wordAt(0)
	if !ok {
		t.Fatal("wordAt(0) reported no words after reload")
	}
	if entry.Word != "crab" {
		t.Errorf("wordAt(0).Word = %q, want %q", entry.Word, "crab")
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
}

func TestPractice_ReloadBadWordListKeepsCurrent(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, false)

	updated := config.Default()
	updated.Words.Path = filepath.Join(t.TempDir(), "missing.yaml")

	p.QueueReload(updated, config.Diff(old, updated))
	p.applyPending()

	entry, _, ok := p.wordAt(0)
	if !ok {
		t.Fatal("wordAt(0) reported no words after failed reload")
	}
	if entry.Word != "cat" {
		t.Errorf("wordAt(0).Word = %q, want builtin list kept", entry.Word)
	}
}

func TestPractice_QueueReloadKeepsLatest(t *testing.T) {
	t.Parallel()

	old := config.Default()
	p := newTestPractice(t, old, false)

	first := config.Default()
	m := first.Recognition.Modes["standard"]
	m.MaxDurationSeconds = 20
	first.Recognition.Modes["standard"] = m

	second := config.Default()
	m = second.Recognition.Modes["standard"]
	m.MaxDurationSeconds = 30
	second.Recognition.Modes["standard"] = m

	p.QueueReload(first, config.Diff(old, first))
	p.QueueReload(second, config.Diff(old, second))
	p.applyPending()

	if got, want := p.Mode().Record.MaxDuration, 30*time.Second; got != want {
		t.Errorf("MaxDuration = %s, want %s from the latest reload", got, want)
	}
}

func TestSpellOut(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"cat", "c-a-t"},
		{"a", "a"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := spellOut(tt.in); got != tt.want {
			t.Errorf("spellOut(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
