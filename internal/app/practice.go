package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/whizbee/spellcast/internal/config"
	"github.com/whizbee/spellcast/internal/recognizer"
	"github.com/whizbee/spellcast/internal/recorder"
	"github.com/whizbee/spellcast/internal/words"
	"github.com/whizbee/spellcast/pkg/audio"
)

// command is the player's answer to the "Ready?" prompt.
type command int

const (
	cmdGo command = iota
	cmdSkip
	cmdQuit
)

// PracticeConfig holds the dependencies for a [Practice].
type PracticeConfig struct {
	Recognizer *recognizer.Recognizer
	List       *words.List

	// Mode is the recognition mode attempts start with.
	Mode recognizer.Mode

	// ModePinned keeps the mode fixed when a config reload changes the
	// default, e.g. because it was chosen on the command line.
	ModePinned bool

	// Output and Input default to os.Stdout and os.Stdin.
	Output io.Writer
	Input  io.Reader
}

// Practice plays one pass over a word list: for each word it waits for the
// player, records a spelling attempt, and reports how the attempt was
// graded. At most one attempt runs at a time. Config reloads queue up via
// [Practice.QueueReload] and apply in the gap before the next word.
type Practice struct {
	rcg *recognizer.Recognizer
	out io.Writer
	in  io.Reader

	mu      sync.Mutex
	list    *words.List
	mode    recognizer.Mode
	pinned  bool
	pending *queuedReload

	// Tally of the current pass; owned by the Run goroutine.
	correct int
	wrong   int
	silent  int
	skipped int
}

// queuedReload is the most recent config reload, waiting for a gap between
// words.
type queuedReload struct {
	cfg  *config.Config
	diff config.ConfigDiff
}

// Summary is the tally of a finished pass. Valid once Run has returned.
type Summary struct {
	Correct int
	Wrong   int
	Silent  int
	Skipped int
}

// NewPractice creates a Practice.
func NewPractice(cfg PracticeConfig) *Practice {
	p := &Practice{
		rcg:    cfg.Recognizer,
		out:    cfg.Output,
		in:     cfg.Input,
		list:   cfg.List,
		mode:   cfg.Mode,
		pinned: cfg.ModePinned,
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.in == nil {
		p.in = os.Stdin
	}
	return p
}

// WordsLoaded reports whether a non-empty word list is loaded. Used as a
// readiness probe.
func (p *Practice) WordsLoaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list != nil && p.list.Len() > 0
}

// Mode returns the recognition mode the next attempt will use.
func (p *Practice) Mode() recognizer.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Summary returns the tally of the pass.
func (p *Practice) Summary() Summary {
	return Summary{Correct: p.correct, Wrong: p.wrong, Silent: p.silent, Skipped: p.skipped}
}

// QueueReload stages a validated config for the next between-words gap.
// Only the latest reload is kept; earlier ones are superseded.
func (p *Practice) QueueReload(cfg *config.Config, d config.ConfigDiff) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = &queuedReload{cfg: cfg, diff: d}
}

// Run plays one pass over the word list. It returns nil when the pass
// completes or the player quits, ctx.Err() on cancellation, and a real
// error only when capture is unusable.
func (p *Practice) Run(ctx context.Context) error {
	lines := make(chan string)
	go readLines(p.in, lines)

	fmt.Fprintf(p.out,
		"Spelling practice: %d words. Press Enter to spell, s to skip, q to quit.\n",
		p.wordCount())

	for i := 0; ; i++ {
		p.applyPending()

		entry, total, ok := p.wordAt(i)
		if !ok {
			break
		}

		fmt.Fprintf(p.out, "\nWord %d of %d: %s\n", i+1, total, strings.ToUpper(entry.Word))
		if entry.Hint != "" {
			fmt.Fprintf(p.out, "Hint: %s\n", entry.Hint)
		}
		fmt.Fprint(p.out, "Ready? ")

		cmd, err := p.await(ctx, lines)
		switch {
		case err != nil:
			return err
		case cmd == cmdQuit:
			p.printSummary()
			return nil
		case cmd == cmdSkip:
			p.skipped++
			continue
		}

		if err := p.playRound(ctx, entry); err != nil {
			return err
		}
	}

	p.printSummary()
	return nil
}

// await waits for the player's go-ahead. A closed input stream reads as
// quit, so a piped word list wraps the pass up cleanly.
func (p *Practice) await(ctx context.Context, lines <-chan string) (command, error) {
	select {
	case <-ctx.Done():
		return cmdQuit, ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return cmdQuit, nil
		}
		switch line {
		case "s", "skip":
			return cmdSkip, nil
		case "q", "quit":
			return cmdQuit, nil
		default:
			return cmdGo, nil
		}
	}
}

// playRound runs a single spelling attempt and reports the outcome.
func (p *Practice) playRound(ctx context.Context, entry words.Entry) error {
	attempt, err := p.rcg.Begin(ctx, entry.Word, p.Mode())
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			return fmt.Errorf("practice: microphone unavailable: %w", err)
		}
		return fmt.Errorf("practice: starting attempt for %q: %w", entry.Word, err)
	}

	fmt.Fprintln(p.out, "Listening... say the word, spell it letter by letter, then say it again.")

	select {
	case <-ctx.Done():
		attempt.Cancel()
		<-attempt.Done()
		return ctx.Err()
	case outcome := <-attempt.Done():
		p.report(entry, outcome)
		return nil
	}
}

// report grades the outcome against the target word and tells the player.
func (p *Practice) report(entry words.Entry, outcome recognizer.Outcome) {
	spelled := outcome.Result.Spelling
	switch {
	case outcome.Result.Accepted && spelled == entry.Word:
		p.correct++
		fmt.Fprintf(p.out, "Correct! %s spells %q.\n", spellOut(spelled), entry.Word)
	case spelled != "":
		p.wrong++
		fmt.Fprintf(p.out, "Not quite: I heard %s, but %q is spelled %s.\n",
			spellOut(spelled), entry.Word, spellOut(entry.Word))
	case outcome.Reason == recorder.ReasonTimeout:
		p.silent++
		fmt.Fprintln(p.out, "Time ran out before I heard a spelling.")
	default:
		p.silent++
		fmt.Fprintln(p.out, "I couldn't make out a spelling that time.")
	}

	slog.Debug("attempt detail",
		"word", entry.Word,
		"spelling", spelled,
		"accepted", outcome.Result.Accepted,
		"confidence", outcome.Extraction.Confidence,
		"reason", outcome.Reason.String(),
		"transcript", outcome.Transcript,
		"issues", strings.Join(outcome.Extraction.Issues, "; "),
	)
}

// applyPending applies a queued reload. Called between words, never while
// an attempt is recording.
func (p *Practice) applyPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return
	}
	r := p.pending
	p.pending = nil

	if r.diff.AliasesChanged {
		p.rcg.SetExtractor(extractorFromConfig(r.cfg))
		slog.Info("letter name aliases toggled",
			"enabled", r.cfg.Recognition.LetterNameAliases)
	}

	name := p.mode.Name
	if r.diff.DefaultModeChanged && !p.pinned {
		name = r.cfg.Recognition.DefaultMode
	}
	mode, ok := modeFromConfig(r.cfg, name)
	switch {
	case !ok:
		slog.Warn("recognition mode removed by reload, keeping previous settings", "mode", name)
	case mode != p.mode:
		p.mode = mode
		slog.Info("recognition mode retuned",
			"mode", mode.Name,
			"max_duration", mode.Record.MaxDuration,
			"silence_duration", mode.Record.VAD.SilenceDuration,
			"strict_accept", mode.StrictAccept,
		)
	}

	if r.diff.WordsChanged {
		list, err := loadWordList(r.cfg)
		if err != nil {
			slog.Warn("word list reload failed, keeping current list",
				"path", r.diff.NewWordsPath, "error", err)
		} else {
			// The new list serves the positions not yet played.
			p.list = list
			slog.Info("word list reloaded", "list", list.Name, "count", list.Len())
		}
	}
}

// wordAt returns the i-th word of the current list.
func (p *Practice) wordAt(i int) (words.Entry, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.list == nil || i >= len(p.list.Words) {
		return words.Entry{}, 0, false
	}
	return p.list.Words[i], p.list.Len(), true
}

func (p *Practice) wordCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.list == nil {
		return 0
	}
	return p.list.Len()
}

// printSummary reports the tally of the pass.
func (p *Practice) printSummary() {
	attempted := p.correct + p.wrong + p.silent
	fmt.Fprintf(p.out, "\nPractice over: %d of %d spelled correctly", p.correct, attempted)
	if p.skipped > 0 {
		fmt.Fprintf(p.out, " (%d skipped)", p.skipped)
	}
	fmt.Fprintln(p.out, ".")
}

// spellOut renders a spelling the way it is read aloud: "c-a-t".
func spellOut(s string) string {
	return strings.Join(strings.Split(s, ""), "-")
}

// readLines pumps trimmed, lower-cased lines from r until EOF. On stdin the
// goroutine lives until process exit; with finite readers it ends with the
// input.
func readLines(r io.Reader, lines chan<- string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- strings.TrimSpace(strings.ToLower(sc.Text()))
	}
	close(lines)
}
