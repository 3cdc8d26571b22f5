package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"Waldo/internal/scanner"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mholt/archives"
	"github.com/sirupsen/logrus"
)

const maxArchiveFiles = 10000 // zip-bomb protection

var errArchiveLimit = errors.New("archive file limit reached")

// IsArchive by extension. O(1) map lookup
var archiveExt = map[string]struct{}{
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {},
	".rar": {}, ".br": {}, ".lz4": {}, ".lz": {}, ".mz": {},
	".sz": {}, ".s2": {}, ".zz": {}, ".zst": {}, ".7z": {},
	".tgz": {},
}

func IsArchive(path string) bool {
	_, ok := archiveExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// EnumOptions controls how a target is turned into tasks.
type EnumOptions struct {
	Target           string
	Recursive        bool
	Depth            int // 0 - unlimited
	IgnoreSubstrings []string
	Include          []string // doublestar globs on the relative path
	Exclude          []string
	Archives         bool
	MaxArchiveFiles  int
}

// PathSource enumerates opts.Target. Paths dropped by the ignore filter go to
// onIgnored; walk errors go to onError and never stop the walk. Both
// callbacks may be nil.
func PathSource(opts EnumOptions, stats *ScanStats, onIgnored func(path string), onError func(path string, err error)) scanner.Source {
	if stats == nil {
		stats = &ScanStats{}
	}
	if opts.MaxArchiveFiles <= 0 {
		opts.MaxArchiveFiles = maxArchiveFiles
	}
	e := &enumerator{opts: opts, stats: stats, onIgnored: onIgnored, onError: onError}
	return e.run
}

type enumerator struct {
	opts      EnumOptions
	stats     *ScanStats
	onIgnored func(string)
	onError   func(string, error)
	enqueue   func(scanner.Task) bool
}

func (e *enumerator) run(ctx context.Context, enqueue func(scanner.Task) bool) error {
	e.enqueue = enqueue
	root := e.opts.Target
	st, err := os.Stat(root)
	if err != nil {
		return startupErr("target", err)
	}
	if !st.IsDir() {
		if !st.Mode().IsRegular() {
			return startupErr("target", fmt.Errorf("%s: %w", root, ErrNotRegular))
		}
		e.offer(ctx, root, filepath.Base(root), false)
		return nil
	}

	if !e.opts.Recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return startupErr("target", err)
		}
		for _, d := range entries {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			path := filepath.Join(root, d.Name())
			if !isRegular(path, d) {
				continue
			}
			if !e.offer(ctx, path, d.Name(), true) {
				return ctx.Err()
			}
		}
		return nil
	}

	return WalkWithDepth(ctx, root, e.opts.Depth, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			e.walkError(path, err)
			return nil
		}
		if d.IsDir() || !isRegular(path, d) {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if !e.offer(ctx, path, filepath.ToSlash(rel), true) {
			return ctx.Err()
		}
		return nil
	})
}

// offer filters and enqueues one file. It returns false once the scan stops
// accepting tasks.
func (e *enumerator) offer(ctx context.Context, path, rel string, filter bool) bool {
	if filter && e.ignored(path, rel) {
		return true
	}
	if e.opts.Archives && IsArchive(path) {
		err := WalkArchive(ctx, path, e.opts.MaxArchiveFiles, func(inner string) bool {
			if e.ignored(path+scanner.VirtualPathSeparator+inner, inner) {
				return true
			}
			return e.enqueue(scanner.Task{Path: path, InnerPath: inner})
		})
		if err != nil && ctx.Err() == nil {
			e.walkError(path, err)
		}
		return ctx.Err() == nil
	}
	return e.enqueue(scanner.Task{Path: path})
}

func (e *enumerator) ignored(path, rel string) bool {
	for _, s := range e.opts.IgnoreSubstrings {
		if s != "" && strings.Contains(rel, s) {
			e.stats.FilesIgnored.Add(1)
			if e.onIgnored != nil {
				e.onIgnored(path)
			}
			return true
		}
	}
	if !globAllowed(rel, e.opts.Include, e.opts.Exclude) {
		e.stats.FilesIgnored.Add(1)
		logrus.WithField("file", path).Debug("Filtered by glob")
		return true
	}
	return false
}

func (e *enumerator) walkError(path string, err error) {
	e.stats.WalkErrors.Add(1)
	logrus.WithFields(logrus.Fields{"path": path, "err": err}).Warn("Walk error")
	if e.onError != nil {
		e.onError(path, err)
	}
}

// globAllowed applies include globs (any must match when set) then exclude globs.
func globAllowed(rel string, include, exclude []string) bool {
	if len(include) > 0 {
		ok := false
		for _, g := range include {
			if m, _ := doublestar.Match(g, rel); m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, g := range exclude {
		if m, _ := doublestar.Match(g, rel); m {
			return false
		}
	}
	return true
}

// isRegular follows symlinks; FIFOs, sockets and devices are not regular.
func isRegular(path string, d os.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&os.ModeSymlink == 0 {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// WalkWithDepth uses WalkDir and cuts branches by depth.
func WalkWithDepth(ctx context.Context, root string, maxDepth int, fn func(path string, d os.DirEntry, err error) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fn(path, d, err)
		}
		if maxDepth > 0 {
			rel, _ := filepath.Rel(root, path)
			if rel != "." && depthCount(rel) > maxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		return fn(path, d, nil)
	})
}

// WalkArchive feeds the regular files inside an archive to send, at most
// limit of them. send returning false stops the walk.
func WalkArchive(ctx context.Context, path string, limit int, send func(inner string) bool) error {
	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer closer.Close()
	}

	count := 0
	err = iofs.WalkDir(fsys, ".", func(inner string, d iofs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || d.IsDir() {
			return nil
		}
		if count >= limit {
			logrus.Warnf("Archive %s truncated: too many files (>= %d)", path, limit)
			return errArchiveLimit
		}
		count++
		if !send(inner) {
			return iofs.SkipAll
		}
		return nil
	})
	if errors.Is(err, errArchiveLimit) {
		return nil
	}
	return err
}

func depthCount(rel string) int {
	if rel == "" {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}

// Manifest writes one ignored path per line.
type Manifest struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	n  int
}

// CreateManifest truncates path.
func CreateManifest(path string) (*Manifest, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, startupErr("open ignored manifest", err)
	}
	return &Manifest{f: f, w: bufio.NewWriter(f)}, nil
}

func (m *Manifest) Add(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.WriteString(path + "\n"); err != nil {
		logrus.WithError(err).Error("write ignored manifest")
		return
	}
	m.n++
}

// Len returns the number of recorded paths.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.w.Flush(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}
