package internal

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Summary is what the CLI prints after a scan.
type Summary struct {
	ScanID          string
	Stats           *ScanStats
	ReportFile      string
	ErrorLog        string
	IgnoredManifest string
	Cancelled       bool
}

// PrintSummary writes the end-of-scan summary. Colors follow color.NoColor.
func PrintSummary(w io.Writer, s Summary) {
	bold := color.New(color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed, color.Bold)

	title := "Scan finished"
	if s.Cancelled {
		title = "Scan cancelled"
	}
	fmt.Fprintln(w)
	bold.Fprintf(w, "======= %s in %s =======\n", title, s.Stats.Elapsed().Round(1e6))
	if s.ScanID != "" {
		fmt.Fprintf(w, "Scan ID:              %s\n", s.ScanID)
	}
	fmt.Fprintf(w, "Files found:          %d\n", s.Stats.FilesFound.Load())
	fmt.Fprintf(w, "Files scanned:        %d\n", s.Stats.FilesScanned.Load())
	fmt.Fprintf(w, "Files ignored:        %d\n", s.Stats.FilesIgnored.Load())
	if n := s.Stats.FilesSkipped.Load(); n > 0 {
		warn.Fprintf(w, "Files skipped:        %d\n", n)
	}

	matches := good
	if s.Stats.Matches.Load() > 0 {
		matches = bad
	}
	matches.Fprintf(w, "Matches found:        %d\n", s.Stats.Matches.Load())

	errs := s.Stats.Errors.Load() + s.Stats.WalkErrors.Load()
	if errs > 0 {
		warn.Fprintf(w, "Errors:               %d (see %s)\n", errs, s.ErrorLog)
	} else {
		fmt.Fprintf(w, "Errors:               0\n")
	}
	if n := s.Stats.WriteErrors.Load(); n > 0 {
		bad.Fprintf(w, "Write errors:         %d\n", n)
	}
	fmt.Fprintf(w, "Report:               %s\n", s.ReportFile)
	if s.IgnoredManifest != "" {
		fmt.Fprintf(w, "Ignored manifest:     %s\n", s.IgnoredManifest)
	}
}
