package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/scott-cotton/cli"

	"labdoc/internal/core"
)

func storeMigrateCmd(cfg *StoreMigrateConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Migrate.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("%w: store migrate takes no arguments, got %v", cli.ErrUsage, args)
	}
	svc, closeFn, err := cfg.openService(core.WithDryRun(cfg.Dry))
	if err != nil {
		return err
	}
	defer closeFn()
	batch, err := svc.MigrateAll(cfg.ctx, cfg.Prefix)
	writeBatch(cc.Out, batch, cfg.Dry)
	if err != nil {
		return err
	}
	if batch.Failed() > 0 {
		return cli.ExitCodeErr(1)
	}
	return nil
}

func writeBatch(w io.Writer, batch core.BatchReport, dry bool) {
	for _, out := range batch.Outcomes {
		line := fmt.Sprintf("%-40s %s", out.Key, paintStatus(out.Status))
		if out.Report.Changed() {
			line += " " + describe(out.Report)
		}
		fmt.Fprintln(w, line)
	}
	for _, f := range batch.Failures {
		fmt.Fprintf(w, "%s: %s\n", f.Key, failColor(f.Err.Error()))
	}
	summary := fmt.Sprintf("%d documents: %d migrated, %d current, %d failed",
		batch.Total, batch.Migrated, batch.Current, batch.Failed())
	if dry {
		summary += " " + warnColor("(dry run, nothing written)")
	}
	fmt.Fprintln(w, summary)
}

func storeInspectCmd(cfg *StoreInspectConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Inspect.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: store inspect needs at least one key", cli.ErrUsage)
	}
	svc, closeFn, err := cfg.openService()
	if err != nil {
		return err
	}
	defer closeFn()
	failed := false
	for _, key := range args {
		ins, err := svc.Inspect(cfg.ctx, key)
		if err != nil {
			fmt.Fprintf(cc.Out, "%s: %s\n", key, failColor(err.Error()))
			failed = true
			continue
		}
		writeInspection(cc.Out, ins)
	}
	if failed {
		return cli.ExitCodeErr(1)
	}
	return nil
}

func writeInspection(w io.Writer, ins core.Inspection) {
	version := ins.Version.String()
	if !ins.Tagged {
		version = warnColor("untagged") + ", assumed " + version
	}
	fmt.Fprintf(w, "%s (%s, etag %s)\n  version: %s\n  current: %s\n", ins.Key, ins.Format, ins.ETag, version, ins.Current)
	if !ins.Pending() {
		fmt.Fprintln(w, "  "+okColor("up to date"))
		return
	}
	steps := make([]string, 0, len(ins.Plan))
	for _, p := range ins.Plan {
		steps = append(steps, p.String())
	}
	fmt.Fprintf(w, "  pending: %s\n", strings.Join(steps, ", "))
}
