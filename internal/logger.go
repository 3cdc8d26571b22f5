package internal

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// InitLogger initializes the logger with optional file output. An unknown
// level falls back to info.
func InitLogger(logfile, level string) {
	var out io.Writer = os.Stderr
	colors := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if logfile != "" {
		file, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			out = file
			colors = false
		} else {
			logrus.Warn("Failed to open log file, logging to stderr")
		}
	}
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:   colors,
		DisableColors: !colors,
		FullTimestamp: true,
		DisableQuote:  true,
		PadLevelText:  true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
