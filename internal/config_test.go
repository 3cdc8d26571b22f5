package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func TestLoadFile_Basic(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "waldo.yml", `
dirty_words: words.txt
threads: 8
mode: words
chunk_policy: sliding
ignore: [vendor, node_modules]
exclude: ["**/*.min.js"]
read_timeout: 2s
archives: true
`)
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	require.NotNil(t, cfg.Threads)
	assert.Equal(t, 8, *cfg.Threads)
	require.NotNil(t, cfg.DirtyWords)
	assert.Equal(t, "words.txt", *cfg.DirtyWords)
	require.NotNil(t, cfg.Ignore)
	assert.Equal(t, []string{"vendor", "node_modules"}, *cfg.Ignore)
	assert.Nil(t, cfg.Depth)
}

func TestLoadFile_Invalid(t *testing.T) {
	p := writeTemp(t, t.TempDir(), "bad.yml", "threads: [not a number\n")
	_, err := LoadFile(p)
	assert.Error(t, err)
}

func TestLoadLocal(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadLocal(dir)
	assert.True(t, errors.Is(err, ErrNoLocalConfig))

	writeTemp(t, dir, ".waldo.yaml", "threads: 2\n")
	writeTemp(t, dir, ".waldo.yml", "threads: 7\n")
	cfg, err := LoadLocal(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, *cfg.Threads)
}

func TestFileConfig_Apply_FlagsWin(t *testing.T) {
	threads, mode, depth := 8, "words", 3
	timeout := "2s"
	ignore := []string{}
	fc := FileConfig{Threads: &threads, Mode: &mode, Depth: &depth, ReadTimeout: &timeout, Ignore: &ignore}

	o := ScanOptions{Threads: 2, Mode: "lines"}
	given := map[string]bool{"threads": true}
	require.NoError(t, fc.Apply(&o, func(f string) bool { return given[f] }))

	assert.Equal(t, 2, o.Threads, "flag beats file")
	assert.Equal(t, "words", o.Mode)
	assert.Equal(t, 3, o.Depth)
	assert.Equal(t, 2*time.Second, o.ReadTimeout)
	require.NotNil(t, o.Ignore)
	assert.Empty(t, o.Ignore)
}

func TestFileConfig_Apply_BadDuration(t *testing.T) {
	bad := "soon"
	err := FileConfig{ReadTimeout: &bad}.Apply(&ScanOptions{}, nil)
	assert.True(t, IsStartupError(err))
}
