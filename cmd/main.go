package main

import (
	"Waldo/internal"
	"Waldo/internal/scanner"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "waldo",
		Usage: "Search files for dirty words, filtered by a whitelist and a blacklist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "logfile",
				Usage: "Write logs into file instead of stderr",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(c *cli.Context) error {
			internal.InitLogger(c.String("logfile"), c.String("log-level"))
			if c.Bool("no-color") {
				color.NoColor = true
			}
			return nil
		},
		Commands: []*cli.Command{
			scanCommand(),
			stringsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a file or directory and write every match to the report",
		ArgsUsage: "<target>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dirty-words",
				Usage: "Dirty-word list: regex lines, 're:<regex>', 'plain:<text>' or 'plain:i:<text>'",
			},
			&cli.StringFlag{
				Name:  "whitelist",
				Usage: "Whitelist file; when non-empty only listed terms can match",
			},
			&cli.StringFlag{
				Name:  "blacklist",
				Usage: "Blacklist file; listed terms never match",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Match report",
				Value: internal.DefaultReportFile,
			},
			&cli.StringFlag{
				Name:  "errors",
				Usage: "Error log",
				Value: internal.DefaultErrorLog,
			},
			&cli.StringFlag{
				Name:  "ignored",
				Usage: "Ignored-file manifest",
				Value: internal.DefaultIgnoredManifest,
			},
			&cli.StringFlag{
				Name:  "by-pattern",
				Usage: "Also write one file per pattern inside this folder",
			},
			&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"r"},
				Usage:   "Walk subdirectories",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Max directory depth (0 - unlimited)",
			},
			&cli.IntFlag{
				Name:  "threads",
				Usage: "Number of workers",
				Value: internal.DefaultThreads,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Matching mode: lines or words",
				Value: string(internal.ModeLines),
			},
			&cli.IntFlag{
				Name:  "min-length",
				Usage: "Minimum token length in words mode",
				Value: internal.DefaultMinTokenLength,
			},
			&cli.IntFlag{
				Name:  "min-run",
				Usage: "Minimum printable run extracted from binary files",
				Value: internal.DefaultMinRunLength,
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Sample and window size for binary files",
				Value: internal.DefaultChunkSize,
			},
			&cli.StringFlag{
				Name:  "chunk-policy",
				Usage: "Binary windows: first (only the first chunk) or sliding (whole file)",
				Value: string(internal.ChunkFirst),
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "Overlap between sliding windows (0: 256, at most half the chunk size)",
			},
			&cli.StringSliceFlag{
				Name:  "ignore",
				Usage: "Skip paths containing this substring (repeatable, default git,test,svg,cache)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only scan relative paths matching these globs (e.g. **/*.txt)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip relative paths matching these globs",
			},
			&cli.BoolFlag{
				Name:  "archives",
				Usage: "Also scan inside archives (.zip,.tar,.gz,.bz2,.xz,.rar,.7z,...)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Global timeout for scan (e.g. 10m, 1h)",
			},
			&cli.DurationFlag{
				Name:  "read-timeout",
				Usage: "Give up on a single file after this long",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file (default .waldo.yml if present)",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Show a progress bar on stderr",
			},
		},
		Action: runScan,
	}
}

func runScan(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one target path is required", 1)
	}
	scanID := uuid.NewString()
	log := logrus.WithField("scan", scanID)

	opts := internal.ScanOptions{
		Target: c.Args().First(),
		Lists: internal.ListPaths{
			DirtyWords: c.String("dirty-words"),
			Whitelist:  c.String("whitelist"),
			Blacklist:  c.String("blacklist"),
		},
		Recursive:       c.Bool("recursive"),
		Depth:           c.Int("depth"),
		Threads:         c.Int("threads"),
		Mode:            c.String("mode"),
		MinTokenLength:  c.Int("min-length"),
		MinRunLength:    c.Int("min-run"),
		ChunkSize:       c.Int("chunk-size"),
		ChunkPolicy:     c.String("chunk-policy"),
		ChunkOverlap:    c.Int("chunk-overlap"),
		Include:         c.StringSlice("include"),
		Exclude:         c.StringSlice("exclude"),
		Archives:        c.Bool("archives"),
		ReportFile:      c.String("output"),
		ErrorLog:        c.String("errors"),
		IgnoredManifest: c.String("ignored"),
		ByPatternDir:    c.String("by-pattern"),
		ReadTimeout:     c.Duration("read-timeout"),
	}
	if c.IsSet("ignore") {
		opts.Ignore = splitList(c.StringSlice("ignore"))
	}

	if err := applyConfig(c, &opts); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := opts.Validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	opts.Prepare()

	ps, err := internal.LoadPatternSet(opts.Lists, opts.MinTokenLength)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var stats internal.ScanStats
	sink, err := internal.OpenFileSink(opts.SinkOptions(), &stats)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Error("Close report")
		}
	}()

	manifest, err := internal.CreateManifest(opts.IgnoredManifest)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() {
		if err := manifest.Close(); err != nil {
			log.WithError(err).Error("Close ignored manifest")
		}
	}()

	cfg := opts.Config(ps)
	var bar *progressbar.ProgressBar
	if c.Bool("progress") {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionClearOnFinish(),
		)
		cfg.Progress = func(scanner.Task) { _ = bar.Add(1) }
	}

	coord, err := internal.NewCoordinator(cfg, sink, &stats)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// ctx with timeout + OS signals
	base := context.Background()
	var cancel context.CancelFunc
	if t := c.Duration("timeout"); t > 0 {
		base, cancel = context.WithTimeout(base, t)
	} else {
		base, cancel = context.WithCancel(base)
	}
	defer cancel()

	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"target":  opts.Target,
		"mode":    cfg.Mode,
		"workers": cfg.Workers,
	}).Info("Waldo started")

	src := internal.PathSource(opts.EnumOptions(), &stats, manifest.Add, sink.RecordError)
	runErr := coord.Run(ctx, src)
	if bar != nil {
		_ = bar.Finish()
	}

	internal.PrintSummary(os.Stdout, internal.Summary{
		ScanID:          scanID,
		Stats:           &stats,
		ReportFile:      opts.ReportFile,
		ErrorLog:        opts.ErrorLog,
		IgnoredManifest: opts.IgnoredManifest,
		Cancelled:       ctx.Err() != nil,
	})

	switch {
	case runErr == nil:
		return nil
	case internal.IsStartupError(runErr):
		return cli.Exit(runErr.Error(), 1)
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		log.Warn("Scan cancelled")
		return nil
	default:
		log.WithError(runErr).Error("Scan failed")
		return nil
	}
}

// applyConfig merges the YAML config under the flags given on the command line.
func applyConfig(c *cli.Context, opts *internal.ScanOptions) error {
	var (
		fc  internal.FileConfig
		err error
	)
	if path := c.String("config"); path != "" {
		fc, err = internal.LoadFile(path)
		if err != nil {
			return err
		}
	} else {
		fc, err = internal.LoadLocal(".")
		if errors.Is(err, internal.ErrNoLocalConfig) {
			return nil
		}
		if err != nil {
			return err
		}
		logrus.Debug("Using local .waldo.yml")
	}
	return fc.Apply(opts, c.IsSet)
}
