package internal

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAllStringsFile      = "all_found_strings.txt"
	DefaultFilteredStringsFile = "filtered_strings.txt"
)

// StringHit is a printable string that starts with a watch word.
type StringHit struct {
	Text string
	Word string
}

func (h StringHit) String() string { return h.Text + " : " + h.Word }

// ExtractStrings returns the runs of one file made of charset bytes, in file order.
func ExtractStrings(path string, minLen int, cs Charset) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	defer f.Close()

	var out []string
	rs := NewRunScanner(f, minLen).WithCharset(cs)
	for rs.Scan() {
		out = append(out, rs.Candidate().Text)
	}
	if err := rs.Err(); err != nil {
		return out, &AccessError{Path: path, Err: err}
	}
	return out, nil
}

// FilterStrings matches every word case-insensitively at the start of every
// string. Hits are grouped by word in word order. Words that are not valid
// regular expressions are matched literally.
func FilterStrings(found, words []string) []StringHit {
	var hits []StringHit
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		re, err := regexp.Compile("^(?i:" + w + ")")
		if err != nil {
			logrus.WithFields(logrus.Fields{"word": w, "err": err}).Debug("Matching word literally")
			re = regexp.MustCompile("^(?i:" + regexp.QuoteMeta(w) + ")")
		}
		for _, s := range found {
			if re.MatchString(s) {
				hits = append(hits, StringHit{Text: s, Word: w})
			}
		}
	}
	return hits
}

// WriteLines writes one item per line to path, truncating it.
func WriteLines[T any](path string, items []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, it := range items {
		if _, err := fmt.Fprintln(w, it); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWords reads a word list, one word per line.
func ReadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLines(f)
}
