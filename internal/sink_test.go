package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"Waldo/internal/scanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	in := `re:^a.*$|foo/bar:*?"<>|\x`
	out := Sanitize(in)
	if strings.ContainsAny(out, `\/:*?"<>|`) {
		t.Fatalf("sanitize failed: %q", out)
	}
}

func openTestSink(t *testing.T, byPattern bool) (*FileSink, SinkOptions, *ScanStats) {
	t.Helper()
	dir := t.TempDir()
	opts := SinkOptions{
		ReportPath:   filepath.Join(dir, "results.txt"),
		ErrorLogPath: filepath.Join(dir, "errors.log"),
	}
	if byPattern {
		opts.ByPatternDir = filepath.Join(dir, "by")
	}
	stats := &ScanStats{}
	s, err := OpenFileSink(opts, stats)
	require.NoError(t, err)
	return s, opts, stats
}

func readFileLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	if len(b) == 0 {
		return nil
	}
	require.True(t, strings.HasSuffix(string(b), "\n"), "file must end with a newline")
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestFileSink_RecordFormats(t *testing.T) {
	s, opts, _ := openTestSink(t, false)
	s.Record(scanner.MatchRecord{Path: "a.txt", Term: "password", Loc: scanner.Location{Line: 1}})
	s.Record(scanner.MatchRecord{Path: "b.bin", Term: "leak", Loc: scanner.Location{Offset: 5000, Binary: true}})
	s.RecordError("c.txt", errors.New("permission denied"))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"a.txt:password:1", "b.bin:leak:5000"}, readFileLines(t, opts.ReportPath))
	assert.Equal(t, []string{"Error processing file c.txt: permission denied"}, readFileLines(t, opts.ErrorLogPath))
}

func TestFileSink_ConcurrentLinesStayWhole(t *testing.T) {
	s, opts, _ := openTestSink(t, false)

	const writers, each = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				s.Record(scanner.MatchRecord{
					Path: fmt.Sprintf("dir/file-%02d.txt", w),
					Term: strings.Repeat("x", 50+w),
					Loc:  scanner.Location{Line: i + 1},
				})
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	lines := readFileLines(t, opts.ReportPath)
	require.Len(t, lines, writers*each)
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		parts := strings.Split(l, ":")
		require.Len(t, parts, 3, "torn line %q", l)
		w, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(parts[0], "dir/file-"), ".txt"))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("x", 50+w), parts[1])
		assert.False(t, seen[l], "duplicate %q", l)
		seen[l] = true
	}
}

func TestFileSink_ByPattern(t *testing.T) {
	s, opts, _ := openTestSink(t, true)
	s.Record(scanner.MatchRecord{Path: "/var/log/x.txt", Term: "plain:i:hello", Loc: scanner.Location{Line: 3}})
	s.Record(scanner.MatchRecord{Path: "/var/log/y.txt", Term: "plain:i:hello", Loc: scanner.Location{Line: 4}})
	require.NoError(t, s.Close())

	ents, err := os.ReadDir(opts.ByPatternDir)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, Sanitize("plain:i:hello")+".txt", ents[0].Name())
	assert.Equal(t,
		[]string{"/var/log/x.txt:plain:i:hello:3", "/var/log/y.txt:plain:i:hello:4"},
		readFileLines(t, filepath.Join(opts.ByPatternDir, ents[0].Name())))
}

func TestFileSink_TruncatesAndKeepsEmptyReport(t *testing.T) {
	dir := t.TempDir()
	opts := SinkOptions{ReportPath: filepath.Join(dir, "r.txt"), ErrorLogPath: filepath.Join(dir, "e.log")}
	require.NoError(t, os.WriteFile(opts.ReportPath, []byte("stale\n"), 0644))

	s, err := OpenFileSink(opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	st, err := os.Stat(opts.ReportPath)
	require.NoError(t, err)
	assert.Zero(t, st.Size())
}

func TestFileSink_SecondSinkOnSameReportFails(t *testing.T) {
	s, opts, _ := openTestSink(t, false)
	defer s.Close()

	_, err := OpenFileSink(opts, nil)
	require.Error(t, err)
	assert.True(t, IsStartupError(err))
	assert.ErrorIs(t, err, ErrReportLocked)
}

func TestFileSink_WriteAfterCloseIsCounted(t *testing.T) {
	s, _, stats := openTestSink(t, false)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Record(scanner.MatchRecord{Path: "late.txt", Term: "x", Loc: scanner.Location{Line: 1}})
	s.RecordError("late.txt", errors.New("boom"))
	assert.Equal(t, int64(2), stats.WriteErrors.Load())
}

func TestOpenFileSink_BadPath(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenFileSink(SinkOptions{
		ReportPath:   filepath.Join(dir, "no", "such", "dir", "r.txt"),
		ErrorLogPath: filepath.Join(dir, "e.log"),
	}, nil)
	require.Error(t, err)
	assert.True(t, IsStartupError(err))
}
