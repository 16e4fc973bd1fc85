package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"labdoc/internal/ledger"
)

// setupColor enables colour when forced or when w is a terminal.
func setupColor(cfg *MainConfig, w io.Writer) {
	if cfg.Color {
		color.NoColor = false
		return
	}
	f, ok := w.(*os.File)
	color.NoColor = !ok || !isatty.IsTerminal(f.Fd())
}

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	warnColor = color.New(color.FgYellow).SprintFunc()
	failColor = color.New(color.FgRed, color.Bold).SprintFunc()
	dimColor  = color.New(color.Faint).SprintFunc()
)

func paintStatus(s ledger.Status) string {
	switch s {
	case ledger.StatusMigrated:
		return okColor(string(s))
	case ledger.StatusCurrent:
		return dimColor(string(s))
	case ledger.StatusFailed:
		return failColor(string(s))
	}
	return string(s)
}

// writeLineDiff prints a line diff between before and after with -/+
// prefixes. It writes nothing when they are equal.
func writeLineDiff(w io.Writer, name string, before, after string) error {
	if before == after {
		return nil
	}
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	if _, err := fmt.Fprintf(w, "--- %s\n+++ %s (migrated)\n", name, name); err != nil {
		return err
	}
	for _, d := range diffs {
		prefix, paint := " ", fmt.Sprint
		switch d.Type {
		case diffpatch.DiffDelete:
			prefix, paint = "-", failColor
		case diffpatch.DiffInsert:
			prefix, paint = "+", okColor
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			if _, err := io.WriteString(w, paint(prefix+line)); err != nil {
				return err
			}
		}
	}
	return nil
}
