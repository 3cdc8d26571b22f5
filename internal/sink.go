package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"Waldo/internal/scanner"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// ErrReportLocked means another scan holds the report file.
var ErrReportLocked = errors.New("report is locked by another scan")

// SinkOptions names the sink destinations.
type SinkOptions struct {
	ReportPath   string
	ErrorLogPath string
	ByPatternDir string // optional: one extra file per pattern
}

// FileSink serializes match and error lines from all workers into the
// report and the error log. Each line goes out in one Write under mu.
type FileSink struct {
	mu     sync.Mutex
	report *os.File
	errLog *os.File
	lock   *flock.Flock

	byPatternDir string
	patternMu    sync.Map // path -> *sync.Mutex

	stats  *ScanStats
	closed bool
}

// OpenFileSink truncates the destinations and takes the report lock.
func OpenFileSink(opts SinkOptions, stats *ScanStats) (*FileSink, error) {
	if opts.ReportPath == "" || opts.ErrorLogPath == "" {
		return nil, startupErr("open sink", errors.New("report and error log paths are required"))
	}
	if stats == nil {
		stats = &ScanStats{}
	}

	lock := flock.New(opts.ReportPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, startupErr("lock report", err)
	}
	if !ok {
		return nil, startupErr("lock report", fmt.Errorf("%s: %w", opts.ReportPath, ErrReportLocked))
	}

	report, err := os.OpenFile(opts.ReportPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		_ = lock.Unlock()
		return nil, startupErr("open report", err)
	}
	errLog, err := os.OpenFile(opts.ErrorLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		_ = report.Close()
		_ = lock.Unlock()
		return nil, startupErr("open error log", err)
	}
	if opts.ByPatternDir != "" {
		if err := os.MkdirAll(opts.ByPatternDir, 0755); err != nil {
			_ = report.Close()
			_ = errLog.Close()
			_ = lock.Unlock()
			return nil, startupErr("create by-pattern dir", err)
		}
	}

	return &FileSink{
		report:       report,
		errLog:       errLog,
		lock:         lock,
		byPatternDir: opts.ByPatternDir,
		stats:        stats,
	}, nil
}

// Record appends one match line.
func (s *FileSink) Record(m scanner.MatchRecord) {
	line := m.String() + "\n"

	s.mu.Lock()
	err := s.write(s.report, line)
	s.mu.Unlock()
	if err != nil {
		s.writeFailed("report", line, err)
	}

	if s.byPatternDir != "" {
		s.recordByPattern(m.Term, line)
	}
}

// RecordError appends one error-log line.
func (s *FileSink) RecordError(path string, cause error) {
	line := fmt.Sprintf("Error processing file %s: %v\n", path, cause)

	s.mu.Lock()
	err := s.write(s.errLog, line)
	s.mu.Unlock()
	if err != nil {
		s.writeFailed("error log", line, err)
	}
}

// write must be called with mu held.
func (s *FileSink) write(f *os.File, line string) error {
	if s.closed {
		return os.ErrClosed
	}
	_, err := f.WriteString(line)
	return err
}

// writeFailed is the best-effort fallback: the line goes to the diagnostic log instead.
func (s *FileSink) writeFailed(dest, line string, err error) {
	s.stats.WriteErrors.Add(1)
	logrus.WithFields(logrus.Fields{"dest": dest, "err": err}).Error(strings.TrimSuffix(line, "\n"))
}

func (s *FileSink) recordByPattern(pattern, line string) {
	path := filepath.Join(s.byPatternDir, Sanitize(pattern)+".txt")
	muAny, _ := s.patternMu.LoadOrStore(path, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)

	mu.Lock()
	defer mu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.writeFailed(path, line, err)
		return
	}
	_, err = f.WriteString(line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.writeFailed(path, line, err)
	}
}

// Close flushes the files and releases the report lock. Records arriving
// afterwards go to the fallback log.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, f := range []*os.File{s.report, s.errLog} {
		if err := f.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
			errs = append(errs, err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	_ = os.Remove(s.lock.Path())
	return errors.Join(errs...)
}

// Sanitize makes a pattern usable as a file name.
func Sanitize(s string) string {
	r := strings.NewReplacer(
		string(os.PathSeparator), "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return r.Replace(s)
}
