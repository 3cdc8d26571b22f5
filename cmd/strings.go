package main

import (
	"Waldo/internal"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func stringsCommand() *cli.Command {
	return &cli.Command{
		Name:      "strings",
		Usage:     "Dump the printable strings of a file and keep those starting with a listed word",
		ArgsUsage: "<file> [wordlist]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "min-run",
				Usage: "Minimum string length",
				Value: internal.DefaultMinRunLength,
			},
			&cli.StringFlag{
				Name:  "charset",
				Usage: "Run characters: printable (ASCII and tab) or strict (letters, digits and /-:.,_$%'()[]<> with control bytes dropped)",
				Value: "printable",
			},
			&cli.StringFlag{
				Name:  "all",
				Usage: "Where to write every string found",
				Value: internal.DefaultAllStringsFile,
			},
			&cli.StringFlag{
				Name:  "filtered",
				Usage: "Where to write strings matching the word list",
				Value: internal.DefaultFilteredStringsFile,
			},
		},
		Action: runStrings,
	}
}

func runStrings(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: waldo strings <file> [wordlist]", 1)
	}

	cs, ok := internal.ParseCharset(c.String("charset"))
	if !ok {
		return cli.Exit(fmt.Sprintf("unknown charset %q", c.String("charset")), 1)
	}
	found, err := internal.ExtractStrings(c.Args().Get(0), c.Int("min-run"), cs)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := internal.WriteLines(c.String("all"), found); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	logrus.WithFields(logrus.Fields{"strings": len(found), "file": c.String("all")}).Info("Strings written")

	if c.NArg() < 2 {
		return nil
	}
	words, err := internal.ReadWords(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	hits := internal.FilterStrings(found, words)
	if err := internal.WriteLines(c.String("filtered"), hits); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("%d strings, %d matched a listed word\n", len(found), len(hits))
	return nil
}

// splitList accepts both repeated flags and comma separated values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, v := range strings.Split(s, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
