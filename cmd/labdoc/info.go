package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/scott-cotton/cli"

	"labdoc/internal/ledger"
	"labdoc/pkg/document"
	"labdoc/pkg/migrate"
)

func versionCmd(cfg *VersionConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Version.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: version needs at least one file", cli.ErrUsage)
	}
	chain, err := cfg.loadChain(nil)
	if err != nil {
		return err
	}
	if failed := writeVersions(cc.Out, chain, args); failed > 0 {
		return cli.ExitCodeErr(1)
	}
	return nil
}

// writeVersions prints one line per file and returns how many could not be read.
func writeVersions(w io.Writer, chain *migrate.Chain, files []string) int {
	failed := 0
	for _, name := range files {
		v, tagged, err := fileVersion(chain, name)
		switch {
		case err != nil:
			fmt.Fprintf(w, "%s\t%s\n", name, failColor(err.Error()))
			failed++
		case !tagged:
			fmt.Fprintf(w, "%s\t%s (assumed %s)\n", name, warnColor("legacy"), v)
		case v == chain.Current():
			fmt.Fprintf(w, "%s\t%s\n", name, okColor(v.String()))
		default:
			fmt.Fprintf(w, "%s\t%s\n", name, v)
		}
	}
	return failed
}

func fileVersion(chain *migrate.Chain, name string) (migrate.Version, bool, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", false, err
	}
	format := document.FormatFromName(name)
	if format == "" {
		format = document.FormatJSON
	}
	doc, err := document.Decode(data, format)
	if err != nil {
		return "", false, err
	}
	return chain.Version(doc)
}

func chainCmd(cfg *ChainConfig, cc *cli.Context, args []string) error {
	if _, err := cfg.Chain.Parse(cc, args); err != nil {
		return err
	}
	chain, err := cfg.loadChain(nil)
	if err != nil {
		return err
	}
	return writeChain(cc.Out, chain, cfg.Ops)
}

func writeChain(w io.Writer, chain *migrate.Chain, ops bool) error {
	patches := chain.Patches()
	if len(patches) != chain.Len() {
		return fmt.Errorf("%w: only %d of %d patches are reachable from %s", migrate.ErrInvalidChain, len(patches), chain.Len(), chain.Legacy())
	}
	fmt.Fprintf(w, "legacy %s, current %s, tag %s\n", chain.Legacy(), chain.Current(), chain.Tag().Path)
	for _, p := range patches {
		line := fmt.Sprintf("%s  (%d ops)", p, len(p.Operations))
		if p.Description != "" {
			line += "  " + dimColor(p.Description)
		}
		fmt.Fprintln(w, line)
		if !ops {
			continue
		}
		for _, op := range p.Operations {
			fmt.Fprintf(w, "    %s\n", op)
		}
	}
	return nil
}

func historyCmd(cfg *HistoryConfig, cc *cli.Context, args []string) error {
	args, err := cfg.History.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: history needs exactly one key", cli.ErrUsage)
	}
	led, err := ledger.Open(cfg.ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = led.Close() }()
	recs, err := led.History(cfg.ctx, args[0])
	if err != nil {
		return err
	}
	writeHistory(cc.Out, args[0], recs)
	return nil
}

func writeHistory(w io.Writer, key string, recs []ledger.Record) {
	if len(recs) == 0 {
		fmt.Fprintf(w, "%s: no ledger records\n", key)
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %-8s %s -> %s (%d steps)", r.ID, r.StartedAt.Format(time.RFC3339), paintStatus(r.Status), r.From, r.To, r.Steps)
		if r.Error != "" {
			fmt.Fprintf(w, "  %s", failColor(r.Error))
		}
		fmt.Fprintln(w)
	}
}
