package scanner

import (
	"context"
	"strconv"
)

// VirtualPathSeparator joins an archive path and the path of an entry inside it.
const VirtualPathSeparator = "::"

// Task is a single file to process. It is consumed exactly once by one worker.
type Task struct {
	Path      string
	InnerPath string // set for entries inside an archive
}

// Display returns the path used in reports.
func (t Task) Display() string {
	if t.InnerPath == "" {
		return t.Path
	}
	return t.Path + VirtualPathSeparator + t.InnerPath
}

// Location points at a hit: a 1-based line for text, a byte offset for binaries.
type Location struct {
	Line   int
	Offset int64
	Binary bool
}

func (l Location) String() string {
	if l.Binary {
		return strconv.FormatInt(l.Offset, 10)
	}
	return strconv.Itoa(l.Line)
}

// MatchRecord is one reportable hit.
type MatchRecord struct {
	Path string
	Term string
	Loc  Location
}

// String renders the report line without the trailing newline.
func (m MatchRecord) String() string {
	return m.Path + ":" + m.Term + ":" + m.Loc.String()
}

// Sink receives hits and per-file failures from concurrent workers.
// Implementations must be safe for concurrent use.
type Sink interface {
	Record(MatchRecord)
	RecordError(path string, cause error)
}

// Source feeds tasks to a scan. enqueue reports false once the scan no longer
// accepts tasks (cancellation); the source should stop then.
type Source func(ctx context.Context, enqueue func(Task) bool) error

// Scanner is the interface for file scanners.
type Scanner interface {
	Run(ctx context.Context, src Source) error
}
