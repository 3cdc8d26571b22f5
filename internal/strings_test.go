package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStrings(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(p, []byte("\x7fELF\x00\x00api_key=XYZ\x01ok\x02/usr/lib/x\x00"), 0644))

	got, err := ExtractStrings(p, 4, CharsetPrintable)
	require.NoError(t, err)
	// DEL is not printable, so "ELF" is too short
	assert.Equal(t, []string{"api_key=XYZ", "/usr/lib/x"}, got)
}

func TestExtractStrings_Strict(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.out")
	body := "user=root\x00\x01ID:42\x85x;pw(hunter2)[ok]\x1b{tail_ok}"
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))

	got, err := ExtractStrings(p, 4, CharsetStrict)
	require.NoError(t, err)
	// control bytes vanish and join the pieces, '=' ';' '{' '}' end a run
	assert.Equal(t, []string{"user", "rootID:42x", "pw(hunter2)[ok]", "tail_ok"}, got)

	got, err = ExtractStrings(p, 4, CharsetPrintable)
	require.NoError(t, err)
	assert.Equal(t, []string{"user=root", "ID:42", "x;pw(hunter2)[ok]", "{tail_ok}"}, got)
}

func TestParseCharset(t *testing.T) {
	cs, ok := ParseCharset("")
	assert.True(t, ok)
	assert.Equal(t, CharsetPrintable, cs)
	cs, ok = ParseCharset("STRICT")
	assert.True(t, ok)
	assert.Equal(t, CharsetStrict, cs)
	_, ok = ParseCharset("utf16")
	assert.False(t, ok)
}

func TestExtractStrings_Missing(t *testing.T) {
	_, err := ExtractStrings(filepath.Join(t.TempDir(), "nope"), 4, CharsetPrintable)
	var ae *AccessError
	assert.ErrorAs(t, err, &ae)
}

func TestFilterStrings(t *testing.T) {
	found := []string{"Password=1", "my password", "API_KEY", "token(", "apikey"}
	hits := FilterStrings(found, []string{"password\n", "api", "", "token("})

	want := []StringHit{
		{Text: "Password=1", Word: "password"},
		{Text: "API_KEY", Word: "api"},
		{Text: "apikey", Word: "api"},
		{Text: "token(", Word: "token("},
	}
	assert.Equal(t, want, hits)
	assert.Equal(t, "API_KEY : api", hits[1].String())
}

func TestWriteLinesAndReadWords(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "filtered.txt")
	require.NoError(t, WriteLines(out, []StringHit{{Text: "a1b2", Word: "a"}}))
	assert.Equal(t, []string{"a1b2 : a"}, readFileLines(t, out))

	wl := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(wl, []byte("alpha\r\n\nbeta\n"), 0644))
	words, err := ReadWords(wl)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, words)
}
