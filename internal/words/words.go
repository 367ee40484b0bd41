// Package words loads the practice word lists the game draws from.
package words

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// List is the top-level structure of a practice word list YAML file.
//
// Example:
//
//	name: "Starter animals"
//	words:
//	  - word: cat
//	    hint: "A small pet that says meow."
//	  - word: dog
//	    hint: "Man's best friend."
type List struct {
	// Name is the list's display name.
	Name string `yaml:"name"`

	// Words are the practice entries, in play order.
	Words []Entry `yaml:"words"`
}

// Entry is one practice word with an optional hint read out before the
// child spells.
type Entry struct {
	Word string `yaml:"word"`
	Hint string `yaml:"hint"`
}

// Load reads and validates a word list YAML file from disk.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("words: open list %q: %w", path, err)
	}
	defer f.Close()

	l, err := FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("words: parse list %q: %w", path, err)
	}
	return l, nil
}

// FromReader parses and validates word list YAML from r. The reader is
// consumed entirely; the caller is responsible for closing it.
func FromReader(r io.Reader) (*List, error) {
	var l List
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("words: decode list yaml: %w", err)
	}
	l.normalize()
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// normalize trims and lower-cases every word so list authors can write
// "Cat" and still match the lower-case spellings the extractor produces.
func (l *List) normalize() {
	for i := range l.Words {
		l.Words[i].Word = strings.ToLower(strings.TrimSpace(l.Words[i].Word))
	}
}

// Validate checks that the list is playable. It returns a joined error
// listing all hard failures and logs soft warnings for entries that will
// work but tend to behave oddly in play.
func (l *List) Validate() error {
	var errs []error

	if len(l.Words) == 0 {
		errs = append(errs, errors.New("words: list contains no words"))
	}

	seen := make(map[string]bool, len(l.Words))
	for i, e := range l.Words {
		w := e.Word
		if w == "" {
			errs = append(errs, fmt.Errorf("words: entry %d has an empty word", i))
			continue
		}
		if !alphabetic(w) {
			errs = append(errs, fmt.Errorf("words: entry %d (%q) must contain letters only", i, w))
			continue
		}
		if len(w) == 1 {
			slog.Warn("single-letter practice words are hard to tell apart from spelled letters", "word", w)
		}
		if seen[w] {
			slog.Warn("duplicate word in list", "word", w)
		}
		seen[w] = true
	}

	return errors.Join(errs...)
}

// Len returns the number of entries in the list.
func (l *List) Len() int { return len(l.Words) }

func alphabetic(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Builtin returns the starter list used when no words file is configured.
func Builtin() *List {
	return &List{
		Name: "Starter words",
		Words: []Entry{
			{Word: "cat", Hint: "A small pet that says meow."},
			{Word: "dog", Hint: "A pet that loves to fetch."},
			{Word: "sun", Hint: "It shines in the sky during the day."},
			{Word: "fish", Hint: "It swims and breathes under water."},
			{Word: "bird", Hint: "It has feathers and can fly."},
			{Word: "apple", Hint: "A red or green fruit."},
			{Word: "house", Hint: "The building a family lives in."},
			{Word: "water", Hint: "You drink it when you are thirsty."},
			{Word: "happy", Hint: "How you feel on your birthday."},
			{Word: "friend", Hint: "Someone you like to play with."},
		},
	}
}
