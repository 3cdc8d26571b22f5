package internal

import (
	"bufio"
	"io"
	"strings"

	"Waldo/internal/scanner"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	DefaultMinRunLength = 4
	maxRunLength        = 4096
	maxLineLength       = 1 << 20
)

// NewDecodingReader decodes r from enc into UTF-8. Malformed input becomes
// U+FFFD instead of failing; unknown encodings are read as UTF-8.
func NewDecodingReader(r io.Reader, enc string) io.Reader {
	var e encoding.Encoding = unicode.UTF8
	if got, err := htmlindex.Get(enc); err == nil {
		e = got
	}
	return transform.NewReader(r, e.NewDecoder())
}

// LineScanner yields decoded lines with 1-based numbers. Lines longer than
// maxLineLength are split and keep their number.
type LineScanner struct {
	br   *bufio.Reader
	num  int
	line string
	cont bool // previous chunk of the current line was cut
	err  error
}

func NewLineScanner(r io.Reader) *LineScanner {
	return &LineScanner{br: bufio.NewReaderSize(r, 64*1024)}
}

func (s *LineScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	var sb strings.Builder
	for {
		chunk, err := s.br.ReadSlice('\n')
		sb.Write(chunk)
		if err == bufio.ErrBufferFull && sb.Len() < maxLineLength {
			continue
		}
		if err != nil && err != bufio.ErrBufferFull {
			if err != io.EOF {
				s.err = err
				return false
			}
			s.err = io.EOF
			if sb.Len() == 0 {
				return false
			}
		}
		if !s.cont {
			s.num++
		}
		s.cont = err == bufio.ErrBufferFull
		s.line = strings.TrimRight(sb.String(), "\r\n")
		return true
	}
}

func (s *LineScanner) Line() (int, string) { return s.num, s.line }

// Err returns the first non-EOF read error.
func (s *LineScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// TokenScanner yields whitespace-delimited tokens of decoded text.
type TokenScanner struct {
	lines  *LineScanner
	fields []string
	num    int
	cur    Candidate
}

func NewTokenScanner(r io.Reader) *TokenScanner {
	return &TokenScanner{lines: NewLineScanner(r)}
}

func (s *TokenScanner) Scan() bool {
	for len(s.fields) == 0 {
		if !s.lines.Scan() {
			return false
		}
		var line string
		s.num, line = s.lines.Line()
		s.fields = strings.Fields(line)
	}
	s.cur = Candidate{Text: s.fields[0], Loc: scanner.Location{Line: s.num}}
	s.fields = s.fields[1:]
	return true
}

func (s *TokenScanner) Candidate() Candidate { return s.cur }
func (s *TokenScanner) Err() error           { return s.lines.Err() }

// Charset decides which bytes make up a printable run.
type Charset int

const (
	// CharsetPrintable keeps printable ASCII and tab.
	CharsetPrintable Charset = iota
	// CharsetStrict keeps letters, digits, space and /-:.,_$%'()[]<>.
	// C0 and C1 control bytes are dropped without ending the run.
	CharsetStrict
)

// ParseCharset maps a flag value to a Charset. Empty means printable.
func ParseCharset(s string) (Charset, bool) {
	switch strings.ToLower(s) {
	case "", "printable":
		return CharsetPrintable, true
	case "strict":
		return CharsetStrict, true
	}
	return 0, false
}

type byteClass int

const (
	byteBreak byteClass = iota
	byteKeep
	byteDrop
)

func (c Charset) class(b byte) byteClass {
	if c != CharsetStrict {
		if isPrintable(b) {
			return byteKeep
		}
		return byteBreak
	}
	switch {
	case b < 0x20 || (b >= 0x7f && b < 0xa0):
		return byteDrop
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return byteKeep
	case strings.IndexByte("/-:.,_$%'()[]<> ", b) >= 0:
		return byteKeep
	}
	return byteBreak
}

func isPrintable(b byte) bool {
	return b == '\t' || (b >= 0x20 && b <= 0x7e)
}

// RunScanner yields maximal runs of printable ASCII from raw bytes with the
// offset of their first byte. Runs over maxRunLength come out in pieces.
type RunScanner struct {
	br      *bufio.Reader
	minLen  int
	charset Charset
	off     int64 // offset of the next unread byte
	start   int64 // offset of the first byte in buf
	buf     []byte
	cur     Candidate
	err     error
}

func NewRunScanner(r io.Reader, minLen int) *RunScanner {
	if minLen <= 0 {
		minLen = DefaultMinRunLength
	}
	return &RunScanner{br: bufio.NewReaderSize(r, 64*1024), minLen: minLen, buf: make([]byte, 0, 256)}
}

// WithCharset switches the byte class used for runs. Call it before Scan.
func (s *RunScanner) WithCharset(c Charset) *RunScanner {
	s.charset = c
	return s
}

func (s *RunScanner) Scan() bool {
	for s.err == nil {
		b, err := s.br.ReadByte()
		if err != nil {
			s.err = err
			break
		}
		s.off++
		switch s.charset.class(b) {
		case byteDrop:
			continue
		case byteKeep:
			if len(s.buf) == 0 {
				s.start = s.off - 1
			}
			s.buf = append(s.buf, b)
			if len(s.buf) < maxRunLength {
				continue
			}
			return s.emit()
		}
		if len(s.buf) >= s.minLen {
			return s.emit()
		}
		s.buf = s.buf[:0]
	}
	if len(s.buf) >= s.minLen {
		return s.emit()
	}
	s.buf = s.buf[:0]
	return false
}

// emit publishes the buffered run.
func (s *RunScanner) emit() bool {
	s.cur = Candidate{Text: string(s.buf), Loc: scanner.Location{Offset: s.start, Binary: true}}
	s.buf = s.buf[:0]
	return true
}

func (s *RunScanner) Candidate() Candidate { return s.cur }

func (s *RunScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// ChunkPolicy selects how binary files are windowed for pattern search.
type ChunkPolicy string

const (
	// ChunkFirst inspects only the first chunk. Hits past ChunkSize are missed.
	ChunkFirst ChunkPolicy = "first"
	// ChunkSliding walks the whole file in overlapping windows.
	ChunkSliding ChunkPolicy = "sliding"
)

func ParseChunkPolicy(s string) (ChunkPolicy, bool) {
	switch ChunkPolicy(strings.ToLower(s)) {
	case ChunkFirst, "":
		return ChunkFirst, true
	case ChunkSliding:
		return ChunkSliding, true
	}
	return "", false
}

// WindowScanner reads fixed-size windows from raw bytes. In sliding mode
// each window repeats the last overlap bytes of the previous one.
type WindowScanner struct {
	r       io.Reader
	size    int
	overlap int
	policy  ChunkPolicy
	buf     []byte
	base    int64 // absolute offset of buf[0]
	n       int
	done    bool
	err     error
}

func NewWindowScanner(r io.Reader, size, overlap int, policy ChunkPolicy) *WindowScanner {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 2
	}
	return &WindowScanner{r: r, size: size, overlap: overlap, policy: policy, buf: make([]byte, size)}
}

func (s *WindowScanner) Scan() bool {
	if s.done {
		return false
	}
	keep := 0
	if s.n > 0 {
		if s.policy != ChunkSliding {
			s.done = true
			return false
		}
		keep = s.overlap
		if keep > s.n {
			keep = s.n
		}
		copy(s.buf, s.buf[s.n-keep:s.n])
		s.base += int64(s.n - keep)
	}
	m, err := io.ReadFull(s.r, s.buf[keep:])
	s.n = keep + m
	if err != nil {
		s.done = true
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			s.err = err
			return false
		}
		// nothing new past the overlap
		if m == 0 && (keep > 0 || s.base > 0) {
			return false
		}
	}
	return s.n > 0
}

// Window returns the current window and its absolute offset.
func (s *WindowScanner) Window() ([]byte, int64) { return s.buf[:s.n], s.base }
func (s *WindowScanner) Err() error              { return s.err }
