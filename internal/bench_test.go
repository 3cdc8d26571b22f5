package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func BenchmarkLoadPatterns(b *testing.B) {
	dir := b.TempDir()
	fp := filepath.Join(dir, "p.txt")
	var body strings.Builder
	for i := 0; i < 2000; i++ {
		body.WriteString("plain:i:hello\n")
	}
	body.WriteString("re:^user=\\w+$\n")
	_ = os.WriteFile(fp, []byte(body.String()), 0644)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := LoadPatterns(fp)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRunScanner(b *testing.B) {
	chunk := append(bytes.Repeat([]byte("printable text "), 20), 0, 1, 2, 3)
	data := bytes.Repeat(chunk, 1000)
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rs := NewRunScanner(bytes.NewReader(data), DefaultMinRunLength)
		for rs.Scan() {
		}
		if err := rs.Err(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMatchLine(b *testing.B) {
	ps := &PatternSet{MinTokenLength: DefaultMinTokenLength}
	for _, l := range []string{"password", "secret", "plain:i:TOKEN", `re:AKIA[0-9A-Z]{16}`} {
		p, err := ParsePattern(l)
		if err != nil {
			b.Fatal(err)
		}
		ps.DirtyWords = append(ps.DirtyWords, p)
	}
	line := strings.Repeat("nothing interesting on this line ", 4) + "token"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ps.MatchLine(line)
	}
}
