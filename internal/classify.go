package internal

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	DefaultChunkSize = 4096
	DefaultEncoding  = "UTF-8"

	// Below this chardet confidence the guess is discarded and UTF-8 is assumed.
	MinEncodingConfidence = 30
)

var binaryExt = map[string]struct{}{
	".exe": {}, ".dll": {}, ".bin": {}, ".so": {}, ".dylib": {},
	".o": {}, ".a": {}, ".lib": {}, ".obj": {}, ".class": {},
	".jar": {}, ".pyc": {}, ".wasm": {}, ".elf": {}, ".sys": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {},
	".pdf": {}, ".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".7z": {}, ".xz": {}, ".bz2": {}, ".rar": {}, ".zst": {},
}

// IsBinaryExt reports whether the name carries a known non-text extension.
func IsBinaryExt(name string) bool {
	_, ok := binaryExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Classification is the classifier verdict for one file.
type Classification struct {
	Encoding   string
	Confidence int
	Binary     bool
	Reason     string // why Binary was chosen
}

// Classifier guesses encodings from a bounded prefix of a file.
type Classifier struct {
	SampleSize    int
	MinConfidence int
}

func NewClassifier() *Classifier {
	return &Classifier{SampleSize: DefaultChunkSize, MinConfidence: MinEncodingConfidence}
}

// DetectEncoding guesses the encoding of sample. It never fails: low
// confidence or detector errors yield UTF-8.
func DetectEncoding(sample []byte, minConfidence int) (string, int) {
	if len(sample) == 0 {
		return DefaultEncoding, 0
	}
	if validUTF8Prefix(sample) {
		// chardet labels plain ASCII as ISO-8859-1
		return DefaultEncoding, 100
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil {
		return DefaultEncoding, 0
	}
	if res.Confidence < minConfidence {
		return DefaultEncoding, res.Confidence
	}
	return res.Charset, res.Confidence
}

// Classify decides encoding and the binary verdict for a file name and its sample.
func (c *Classifier) Classify(name string, sample []byte) Classification {
	if len(sample) > c.SampleSize && c.SampleSize > 0 {
		sample = sample[:c.SampleSize]
	}
	enc, conf := DetectEncoding(sample, c.MinConfidence)
	cl := Classification{Encoding: enc, Confidence: conf}

	switch {
	case IsBinaryExt(name):
		cl.Binary, cl.Reason = true, "extension"
	case !isUTF16(enc) && bytes.IndexByte(sample, 0) >= 0:
		cl.Binary, cl.Reason = true, "nul byte"
	case strings.EqualFold(enc, DefaultEncoding) && !validUTF8Prefix(sample):
		cl.Binary, cl.Reason = true, "invalid utf-8"
	case !knownEncoding(enc) && !validUTF8Prefix(sample):
		cl.Binary, cl.Reason = true, "unknown encoding "+enc
	}
	return cl
}

// ClassifyFile samples a file from disk. Open and read failures come back as *AccessError.
func (c *Classifier) ClassifyFile(path string) (Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return Classification{}, &AccessError{Path: path, Err: err}
	}
	defer f.Close()

	buf := make([]byte, c.SampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Classification{}, &AccessError{Path: path, Err: err}
	}
	return c.Classify(path, buf[:n]), nil
}

// validUTF8Prefix is utf8.Valid that forgives a rune cut off by the sample boundary.
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(b); cut++ {
		if !utf8.RuneStart(b[len(b)-cut]) {
			continue
		}
		return utf8.Valid(b[:len(b)-cut]) && !utf8.FullRune(b[len(b)-cut:])
	}
	return false
}

func isUTF16(enc string) bool {
	return strings.HasPrefix(strings.ToUpper(enc), "UTF-16")
}

func knownEncoding(enc string) bool {
	_, err := htmlindex.Get(enc)
	return err == nil
}
