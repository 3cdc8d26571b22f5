package internal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Pattern is one dirty-word rule.
type Pattern interface {
	// Match returns the first matched text in a line that accept allows.
	// A nil accept allows every match.
	Match(line string, accept func(string) bool) (string, bool)
	// MatchWord reports whether the whole token is the rule.
	MatchWord(token string) bool
	// Index returns the byte span of the first accepted hit in a raw window,
	// or -1, -1.
	Index(window []byte, accept func([]byte) bool) (int, int)
	Desc() string // as written in the list; used in reports
}

type RegexPattern struct {
	re   *regexp.Regexp
	word *regexp.Regexp // anchored copy for whole-token checks
	desc string
}

func NewRegexPattern(expr, desc string) (*RegexPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	word, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, err
	}
	return &RegexPattern{re: re, word: word, desc: desc}, nil
}

func (p *RegexPattern) Match(s string, accept func(string) bool) (string, bool) {
	if accept == nil {
		loc := p.re.FindStringIndex(s)
		if loc == nil {
			return "", false
		}
		return s[loc[0]:loc[1]], true
	}
	for _, loc := range p.re.FindAllStringIndex(s, -1) {
		if m := s[loc[0]:loc[1]]; accept(m) {
			return m, true
		}
	}
	return "", false
}

func (p *RegexPattern) MatchWord(s string) bool { return p.word.MatchString(s) }

func (p *RegexPattern) Index(b []byte, accept func([]byte) bool) (int, int) {
	if accept == nil {
		loc := p.re.FindIndex(b)
		if loc == nil {
			return -1, -1
		}
		return loc[0], loc[1]
	}
	for _, loc := range p.re.FindAllIndex(b, -1) {
		if accept(b[loc[0]:loc[1]]) {
			return loc[0], loc[1]
		}
	}
	return -1, -1
}

func (p *RegexPattern) Desc() string { return p.desc }

type PlainPattern struct {
	s           string
	insensitive bool
}

func (p *PlainPattern) Match(s string, accept func(string) bool) (string, bool) {
	hay := s
	if p.insensitive {
		hay = strings.ToLower(s)
	}
	if len(hay) != len(s) {
		// lowering changed byte widths; offsets no longer line up
		if !strings.Contains(hay, p.s) || (accept != nil && !accept(p.s)) {
			return "", false
		}
		return p.s, true
	}
	for from := 0; from <= len(hay)-len(p.s); {
		i := strings.Index(hay[from:], p.s)
		if i < 0 {
			break
		}
		i += from
		if m := s[i : i+len(p.s)]; accept == nil || accept(m) {
			return m, true
		}
		from = i + 1
	}
	return "", false
}

func (p *PlainPattern) MatchWord(s string) bool {
	if p.insensitive {
		return strings.EqualFold(s, p.s)
	}
	return s == p.s
}

func (p *PlainPattern) Index(b []byte, accept func([]byte) bool) (int, int) {
	hay := b
	if p.insensitive {
		hay = asciiLower(b)
	}
	needle := []byte(p.s)
	for from := 0; from <= len(hay)-len(needle); {
		i := bytes.Index(hay[from:], needle)
		if i < 0 {
			break
		}
		i += from
		if accept == nil || accept(b[i:i+len(needle)]) {
			return i, i + len(needle)
		}
		from = i + 1
	}
	return -1, -1
}

// asciiLower lowers A-Z only, so offsets into raw binary stay valid.
func asciiLower(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

func (p *PlainPattern) Desc() string {
	if p.insensitive {
		return "plain:i:" + p.s
	}
	return "plain:" + p.s
}

// ParsePattern turns one list line into a Pattern.
//
//	password          regular expression
//	re:^user=\w+$     regular expression
//	plain:a.b         literal
//	plain:i:Secret    case-insensitive literal
func ParsePattern(line string) (Pattern, error) {
	switch {
	case strings.HasPrefix(line, "plain:i:"):
		return &PlainPattern{s: strings.ToLower(line[8:]), insensitive: true}, nil
	case strings.HasPrefix(line, "plain:"):
		return &PlainPattern{s: line[6:]}, nil
	case strings.HasPrefix(line, "re:"):
		p, err := NewRegexPattern(line[3:], line)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", line, err)
		}
		return p, nil
	default:
		p, err := NewRegexPattern(line, line)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", line, err)
		}
		return p, nil
	}
}

// LoadPatterns reads a dirty-word list, one pattern per line.
// Blank lines and lines starting with "#" are skipped.
func LoadPatterns(path string) ([]Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ps, err := readPatterns(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logrus.Debugf("Loaded %d patterns from %s", len(ps), path)
	return ps, nil
}

func readPatterns(r io.Reader) ([]Pattern, error) {
	var ps []Pattern
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n\t ")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := ParsePattern(line)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ps, nil
}
