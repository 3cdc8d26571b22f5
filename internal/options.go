package internal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"Waldo/internal/scanner"

	"github.com/hashicorp/go-multierror"
)

const (
	DefaultThreads         = 4
	DefaultMinTokenLength  = 3
	DefaultChunkOverlap    = 256
	DefaultReportFile      = "dws_results.txt"
	DefaultErrorLog        = "errors.log"
	DefaultIgnoredManifest = "dws_removed.txt"
)

// DefaultIgnore holds the built-in path substrings that are never scanned.
var DefaultIgnore = []string{"git", "test", "svg", "cache"}

// Mode selects how text is matched.
type Mode string

const (
	// ModeLines searches every line with every dirty-word pattern.
	ModeLines Mode = "lines"
	// ModeWords matches whitespace-delimited tokens against the lists.
	ModeWords Mode = "words"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(s)) {
	case ModeLines, "":
		return ModeLines, true
	case ModeWords:
		return ModeWords, true
	}
	return "", false
}

// ScanOptions - public options from CLI and config file.
type ScanOptions struct {
	Target    string
	Lists     ListPaths
	Recursive bool
	Depth     int
	Threads   int

	Mode           string
	MinTokenLength int
	MinRunLength   int
	ChunkSize      int
	ChunkPolicy    string
	ChunkOverlap   int

	Ignore   []string // nil means DefaultIgnore
	Include  []string
	Exclude  []string
	Archives bool

	ReportFile      string
	ErrorLog        string
	IgnoredManifest string
	ByPatternDir    string

	ReadTimeout time.Duration
}

// Validate checks invariants and reports every problem found.
func (o *ScanOptions) Validate() error {
	var result *multierror.Error
	if o.Target == "" {
		result = multierror.Append(result, errors.New("target path is required"))
	}
	if o.Threads < 0 {
		result = multierror.Append(result, fmt.Errorf("threads must be >= 0, got %d", o.Threads))
	}
	if _, ok := ParseMode(o.Mode); !ok {
		result = multierror.Append(result, fmt.Errorf("unknown mode %q (want lines or words)", o.Mode))
	}
	if _, ok := ParseChunkPolicy(o.ChunkPolicy); !ok {
		result = multierror.Append(result, fmt.Errorf("unknown chunk policy %q (want first or sliding)", o.ChunkPolicy))
	}
	if o.ChunkSize < 0 || o.ChunkOverlap < 0 || o.MinRunLength < 0 || o.MinTokenLength < 0 {
		result = multierror.Append(result, errors.New("sizes and lengths must not be negative"))
	}
	if o.ChunkSize > 0 && o.ChunkOverlap >= o.ChunkSize {
		result = multierror.Append(result, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", o.ChunkOverlap, o.ChunkSize))
	}
	return startupErr("options", result.ErrorOrNil())
}

// Prepare fills defaults for zero values.
func (o *ScanOptions) Prepare() {
	if o.Threads <= 0 {
		o.Threads = DefaultThreads
	}
	if o.MinTokenLength == 0 {
		o.MinTokenLength = DefaultMinTokenLength
	}
	if o.MinRunLength == 0 {
		o.MinRunLength = DefaultMinRunLength
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap == 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = min(DefaultChunkOverlap, o.ChunkSize/2)
	}
	if o.Ignore == nil {
		o.Ignore = DefaultIgnore
	}
	if o.ReportFile == "" {
		o.ReportFile = DefaultReportFile
	}
	if o.ErrorLog == "" {
		o.ErrorLog = DefaultErrorLog
	}
	if o.IgnoredManifest == "" {
		o.IgnoredManifest = DefaultIgnoredManifest
	}
}

// EnumOptions derives the enumeration settings.
func (o *ScanOptions) EnumOptions() EnumOptions {
	return EnumOptions{
		Target:           o.Target,
		Recursive:        o.Recursive,
		Depth:            o.Depth,
		IgnoreSubstrings: o.Ignore,
		Include:          o.Include,
		Exclude:          o.Exclude,
		Archives:         o.Archives,
	}
}

// SinkOptions derives the output settings.
func (o *ScanOptions) SinkOptions() SinkOptions {
	return SinkOptions{
		ReportPath:   o.ReportFile,
		ErrorLogPath: o.ErrorLog,
		ByPatternDir: o.ByPatternDir,
	}
}

// Config is everything the coordinator needs. It is built once and never
// changed while a scan runs.
type Config struct {
	Patterns     *PatternSet
	Workers      int
	Mode         Mode
	ChunkSize    int
	ChunkOverlap int
	ChunkPolicy  ChunkPolicy
	MinRunLength int
	Classifier   *Classifier
	ReadTimeout  time.Duration

	// Progress is called once per finished task from worker goroutines.
	Progress func(scanner.Task)
}

// Config builds the coordinator configuration around loaded watchlists.
func (o *ScanOptions) Config(ps *PatternSet) Config {
	mode, _ := ParseMode(o.Mode)
	policy, _ := ParseChunkPolicy(o.ChunkPolicy)
	cl := NewClassifier()
	cl.SampleSize = o.ChunkSize
	return Config{
		Patterns:     ps,
		Workers:      o.Threads,
		Mode:         mode,
		ChunkSize:    o.ChunkSize,
		ChunkOverlap: o.ChunkOverlap,
		ChunkPolicy:  policy,
		MinRunLength: o.MinRunLength,
		Classifier:   cl,
		ReadTimeout:  o.ReadTimeout,
	}
}

// withDefaults returns a copy with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultThreads
	}
	if c.Mode == "" {
		c.Mode = ModeLines
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkPolicy == "" {
		c.ChunkPolicy = ChunkFirst
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = min(DefaultChunkOverlap, c.ChunkSize/2)
	}
	if c.MinRunLength <= 0 {
		c.MinRunLength = DefaultMinRunLength
	}
	if c.Classifier == nil {
		c.Classifier = NewClassifier()
		c.Classifier.SampleSize = c.ChunkSize
	}
	if c.Classifier.SampleSize <= 0 {
		c.Classifier.SampleSize = c.ChunkSize
	}
	return c
}
