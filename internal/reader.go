package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"Waldo/internal/scanner"

	"github.com/mholt/archives"
	"github.com/sirupsen/logrus"
)

// ctxReader fails reads once ctx is done, so cancellation and per-file
// deadlines are honored at every read boundary.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// fileProcessor runs classify -> extract -> match -> record for one task.
type fileProcessor struct {
	cfg   *Config
	sink  scanner.Sink
	stats *ScanStats
}

// process handles one task. The returned error is per-file; the caller logs it and moves on.
func (p *fileProcessor) process(ctx context.Context, t scanner.Task) error {
	if p.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ReadTimeout)
		defer cancel()
	}

	rc, name, err := p.open(ctx, t)
	if err != nil {
		return err
	}
	defer rc.Close()

	bufSize := 64 * 1024
	if p.cfg.ChunkSize > bufSize {
		bufSize = p.cfg.ChunkSize
	}
	br := bufio.NewReaderSize(ctxReader{ctx: ctx, r: rc}, bufSize)

	sample, err := br.Peek(p.cfg.Classifier.SampleSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return p.readErr(t, err)
	}
	cl := p.cfg.Classifier.Classify(name, sample)
	logrus.WithFields(logrus.Fields{
		"file":       t.Display(),
		"encoding":   cl.Encoding,
		"confidence": cl.Confidence,
		"binary":     cl.Binary,
		"reason":     cl.Reason,
	}).Debug("Classified")

	path := t.Display()
	switch {
	case cl.Binary && p.cfg.Mode == ModeLines && !p.cfg.Patterns.Catalog():
		err = p.matchWindows(br, path)
	case cl.Binary:
		err = p.matchRuns(br, path)
	case p.cfg.Mode == ModeLines && !p.cfg.Patterns.Catalog():
		err = p.matchLines(NewDecodingReader(br, cl.Encoding), path)
	default:
		err = p.matchTokens(NewDecodingReader(br, cl.Encoding), path)
	}
	if err != nil {
		return p.readErr(t, err)
	}
	return nil
}

func (p *fileProcessor) open(ctx context.Context, t scanner.Task) (io.ReadCloser, string, error) {
	if t.InnerPath != "" {
		fsys, err := archives.FileSystem(ctx, t.Path, nil)
		if err != nil {
			return nil, "", &AccessError{Path: t.Display(), Err: err}
		}
		f, err := fsys.Open(t.InnerPath)
		if err != nil {
			if closer, ok := fsys.(io.Closer); ok {
				closer.Close()
			}
			return nil, "", &AccessError{Path: t.Display(), Err: err}
		}
		return archiveEntry{File: f, fsys: fsys}, t.InnerPath, nil
	}

	st, err := os.Stat(t.Path)
	if err != nil {
		return nil, "", &AccessError{Path: t.Path, Err: err}
	}
	if !st.Mode().IsRegular() {
		return nil, "", &AccessError{Path: t.Path, Err: fmt.Errorf("%s: %w", t.Path, ErrNotRegular)}
	}
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, "", &AccessError{Path: t.Path, Err: err}
	}
	if p.cfg.ReadTimeout > 0 {
		// regular files report ErrNoDeadline; only pollable files honor it
		_ = f.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	}
	return f, t.Path, nil
}

// archiveEntry closes the archive file system together with the entry.
type archiveEntry struct {
	fs.File
	fsys fs.FS
}

func (a archiveEntry) Close() error {
	err := a.File.Close()
	if closer, ok := a.fsys.(io.Closer); ok {
		closer.Close()
	}
	return err
}

func (p *fileProcessor) readErr(t scanner.Task, err error) error {
	var ae *AccessError
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		err = fmt.Errorf("read deadline exceeded after %s", p.cfg.ReadTimeout)
	}
	return &AccessError{Path: t.Display(), Err: err}
}

func (p *fileProcessor) record(path, term string, loc scanner.Location) {
	p.stats.Matches.Add(1)
	p.sink.Record(scanner.MatchRecord{Path: path, Term: term, Loc: loc})
}

func (p *fileProcessor) matchLines(r io.Reader, path string) error {
	ls := NewLineScanner(r)
	for ls.Scan() {
		num, line := ls.Line()
		for _, rule := range p.cfg.Patterns.MatchLine(line) {
			p.record(path, rule, scanner.Location{Line: num})
		}
	}
	return ls.Err()
}

func (p *fileProcessor) matchTokens(r io.Reader, path string) error {
	ts := NewTokenScanner(r)
	for ts.Scan() {
		c := ts.Candidate()
		if d := p.cfg.Patterns.Match(c); d.Hit {
			p.record(path, d.Rule, c.Loc)
		}
	}
	return ts.Err()
}

func (p *fileProcessor) matchRuns(r io.Reader, path string) error {
	rs := NewRunScanner(r, p.cfg.MinRunLength)
	for rs.Scan() {
		c := rs.Candidate()
		if d := p.cfg.Patterns.Match(c); d.Hit {
			p.record(path, d.Rule, c.Loc)
		}
	}
	return rs.Err()
}

// matchWindows reports the first hit of each pattern in a binary file.
// Under ChunkFirst only the first window is read.
func (p *fileProcessor) matchWindows(r io.Reader, path string) error {
	ps := p.cfg.Patterns
	found := make([]bool, len(ps.DirtyWords))
	left := len(found)

	ws := NewWindowScanner(r, p.cfg.ChunkSize, p.cfg.ChunkOverlap, p.cfg.ChunkPolicy)
	for left > 0 && ws.Scan() {
		window, base := ws.Window()
		for _, h := range ps.MatchWindow(window, found) {
			found[h.Pattern] = true
			left--
			p.record(path, ps.DirtyWords[h.Pattern].Desc(), scanner.Location{Offset: base + int64(h.Offset), Binary: true})
		}
	}
	return ws.Err()
}
