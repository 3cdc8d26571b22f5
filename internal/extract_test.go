package internal

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineScanner(t *testing.T) {
	ls := NewLineScanner(strings.NewReader("one\r\ntwo\n\nfour"))
	var got []string
	var nums []int
	for ls.Scan() {
		n, l := ls.Line()
		nums = append(nums, n)
		got = append(got, l)
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, []string{"one", "two", "", "four"}, got)
	assert.Equal(t, []int{1, 2, 3, 4}, nums)
}

func TestLineScanner_LongLineKeepsNumber(t *testing.T) {
	long := strings.Repeat("a", maxLineLength+10)
	ls := NewLineScanner(strings.NewReader("x\n" + long + "\ny\n"))
	var nums []int
	total := 0
	for ls.Scan() {
		n, l := ls.Line()
		nums = append(nums, n)
		total += len(l)
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, 1+len(long)+1, total)
	assert.Equal(t, 1, nums[0])
	assert.Equal(t, 3, nums[len(nums)-1])
	for _, n := range nums[1 : len(nums)-1] {
		assert.Equal(t, 2, n)
	}
}

func TestTokenScanner(t *testing.T) {
	ts := NewTokenScanner(strings.NewReader("alpha  beta\n\n\tgamma\n"))
	var got []Candidate
	for ts.Scan() {
		got = append(got, ts.Candidate())
	}
	require.NoError(t, ts.Err())
	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].Text)
	assert.Equal(t, 1, got[0].Loc.Line)
	assert.Equal(t, "gamma", got[2].Text)
	assert.Equal(t, 3, got[2].Loc.Line)
}

func TestDecodingReader_Latin1(t *testing.T) {
	r := NewDecodingReader(bytes.NewReader([]byte{'c', 'a', 'f', 0xe9}), "ISO-8859-1")
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "café", string(b))
}

func TestDecodingReader_LossyUTF8(t *testing.T) {
	r := NewDecodingReader(bytes.NewReader([]byte("ok\xffok")), "no-such-charset")
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "ok�ok", string(b))
}

func TestRunScanner(t *testing.T) {
	data := []byte("\x00\x01abc\x00hello world\x02\x03tail")
	rs := NewRunScanner(bytes.NewReader(data), 4)
	var got []Candidate
	for rs.Scan() {
		got = append(got, rs.Candidate())
	}
	require.NoError(t, rs.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "hello world", got[0].Text)
	assert.Equal(t, int64(6), got[0].Loc.Offset)
	assert.True(t, got[0].Loc.Binary)
	assert.Equal(t, "tail", got[1].Text)
	assert.Equal(t, int64(19), got[1].Loc.Offset)
}

func TestRunScanner_LongRunInPieces(t *testing.T) {
	data := bytes.Repeat([]byte("A"), maxRunLength+5)
	rs := NewRunScanner(bytes.NewReader(data), 4)
	var offs []int64
	var lens []int
	for rs.Scan() {
		c := rs.Candidate()
		offs = append(offs, c.Loc.Offset)
		lens = append(lens, len(c.Text))
	}
	assert.Equal(t, []int64{0, maxRunLength}, offs)
	assert.Equal(t, []int{maxRunLength, 5}, lens)
}

func TestParseChunkPolicy(t *testing.T) {
	p, ok := ParseChunkPolicy("")
	assert.True(t, ok)
	assert.Equal(t, ChunkFirst, p)
	p, ok = ParseChunkPolicy("Sliding")
	assert.True(t, ok)
	assert.Equal(t, ChunkSliding, p)
	_, ok = ParseChunkPolicy("all")
	assert.False(t, ok)
}

func windows(t *testing.T, data []byte, size, overlap int, policy ChunkPolicy) ([]int64, []int) {
	t.Helper()
	ws := NewWindowScanner(bytes.NewReader(data), size, overlap, policy)
	var bases []int64
	var lens []int
	for ws.Scan() {
		w, base := ws.Window()
		bases = append(bases, base)
		lens = append(lens, len(w))
	}
	require.NoError(t, ws.Err())
	return bases, lens
}

func TestWindowScanner_First(t *testing.T) {
	bases, lens := windows(t, make([]byte, 5004), 4096, 256, ChunkFirst)
	assert.Equal(t, []int64{0}, bases)
	assert.Equal(t, []int{4096}, lens)
}

func TestWindowScanner_Sliding(t *testing.T) {
	bases, lens := windows(t, make([]byte, 5004), 4096, 256, ChunkSliding)
	assert.Equal(t, []int64{0, 3840}, bases)
	assert.Equal(t, []int{4096, 1164}, lens)

	// exact multiple: no empty trailing window
	bases, _ = windows(t, make([]byte, 4096), 4096, 256, ChunkSliding)
	assert.Equal(t, []int64{0}, bases)

	bases, _ = windows(t, nil, 4096, 256, ChunkSliding)
	assert.Empty(t, bases)
}
