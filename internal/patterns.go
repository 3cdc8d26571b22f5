package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"Waldo/internal/scanner"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// WordSet is a whitelist or blacklist. A nil set is empty.
type WordSet map[string]struct{}

func NewWordSet(words ...string) WordSet {
	if len(words) == 0 {
		return nil
	}
	s := make(WordSet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s WordSet) Has(w string) bool {
	_, ok := s[w]
	return ok
}

// LoadWordSet reads one term per line. Empty lines are skipped.
func LoadWordSet(path string) (WordSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	words, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewWordSet(words...), nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l := strings.TrimRight(sc.Text(), "\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, sc.Err()
}

// Candidate is an extracted token or printable run with its location.
type Candidate struct {
	Text string
	Loc  scanner.Location
}

// Decision is the matcher verdict for one candidate.
type Decision struct {
	Hit  bool
	Rule string
}

var noHit = Decision{}

// PatternSet holds the watchlists. It is never mutated once a scan starts,
// so workers share it without locking.
type PatternSet struct {
	Whitelist      WordSet
	Blacklist      WordSet
	DirtyWords     []Pattern
	MinTokenLength int
}

// Catalog reports whether every eligible candidate is a hit (no dirty-word list).
func (ps *PatternSet) Catalog() bool { return len(ps.DirtyWords) == 0 }

func (ps *PatternSet) filtered() bool {
	return len(ps.Whitelist) > 0 || len(ps.Blacklist) > 0
}

// eligible applies the whitelist and blacklist to a candidate text.
func (ps *PatternSet) eligible(text string) bool {
	if len(ps.Whitelist) > 0 && !ps.Whitelist.Has(text) {
		return false
	}
	return !ps.Blacklist.Has(text)
}

// Match decides a word-mode candidate.
func (ps *PatternSet) Match(c Candidate) Decision {
	if utf8.RuneCountInString(c.Text) < ps.MinTokenLength {
		return noHit
	}
	if !ps.eligible(c.Text) {
		return noHit
	}
	for _, p := range ps.DirtyWords {
		if p.MatchWord(c.Text) {
			return Decision{Hit: true, Rule: p.Desc()}
		}
	}
	if ps.Catalog() {
		return Decision{Hit: true, Rule: c.Text}
	}
	return noHit
}

// MatchLine searches a whole line with every dirty word and returns the
// rules that hit, at most one per pattern. The whitelist and blacklist are
// applied to each matched span, so a suppressed span does not hide a later
// eligible one.
func (ps *PatternSet) MatchLine(line string) []string {
	var accept func(string) bool
	if ps.filtered() {
		accept = ps.eligible
	}
	var rules []string
	for _, p := range ps.DirtyWords {
		if _, ok := p.Match(line, accept); !ok {
			continue
		}
		rules = append(rules, p.Desc())
	}
	return rules
}

// WindowHit is the first hit of one pattern in a byte window.
type WindowHit struct {
	Pattern int // index into DirtyWords
	Offset  int
}

// MatchWindow searches a raw byte window. skip marks patterns already
// reported for this file; it may be nil.
func (ps *PatternSet) MatchWindow(window []byte, skip []bool) []WindowHit {
	var accept func([]byte) bool
	if ps.filtered() {
		accept = func(b []byte) bool { return ps.eligible(string(b)) }
	}
	var hits []WindowHit
	for i, p := range ps.DirtyWords {
		if skip != nil && skip[i] {
			continue
		}
		start, _ := p.Index(window, accept)
		if start < 0 {
			continue
		}
		hits = append(hits, WindowHit{Pattern: i, Offset: start})
	}
	return hits
}

// ListPaths names the watchlist files. Empty paths are not loaded.
type ListPaths struct {
	Whitelist  string
	Blacklist  string
	DirtyWords string
}

// LoadPatternSet loads every list. All failures are collected so the user
// sees every missing or broken file at once.
func LoadPatternSet(paths ListPaths, minTokenLength int) (*PatternSet, error) {
	ps := &PatternSet{MinTokenLength: minTokenLength}
	var result *multierror.Error

	if paths.Whitelist != "" {
		ws, err := LoadWordSet(paths.Whitelist)
		if err != nil {
			result = multierror.Append(result, err)
		}
		ps.Whitelist = ws
	}
	if paths.Blacklist != "" {
		bs, err := LoadWordSet(paths.Blacklist)
		if err != nil {
			result = multierror.Append(result, err)
		}
		ps.Blacklist = bs
	}
	if paths.DirtyWords != "" {
		dw, err := LoadPatterns(paths.DirtyWords)
		if err != nil {
			result = multierror.Append(result, err)
		}
		ps.DirtyWords = dw
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, startupErr("load lists", err)
	}

	logrus.WithFields(logrus.Fields{
		"whitelist":   len(ps.Whitelist),
		"blacklist":   len(ps.Blacklist),
		"dirty_words": len(ps.DirtyWords),
	}).Info("Watchlists loaded")
	if ps.Catalog() {
		logrus.Warn("No dirty-word list given, every eligible token will be reported")
	}
	return ps, nil
}
