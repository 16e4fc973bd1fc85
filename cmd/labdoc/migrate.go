package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/scott-cotton/cli"

	"labdoc/internal/core"
	"labdoc/internal/docstore"
	"labdoc/pkg/document"
	"labdoc/pkg/migrate"
)

func migrateCmd(cfg *MigrateConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Migrate.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: migrate needs at least one file", cli.ErrUsage)
	}
	chain, err := cfg.loadChain(nil)
	if err != nil {
		return err
	}
	obs, err := cfg.observers()
	if err != nil {
		return err
	}
	defer func() { _ = obs.close() }()
	svc := core.NewService(docstore.NewMemory(), chain, append([]core.Option{core.WithLogger(glogLogger{})}, obs.opts...)...)
	opts := fileOptions{write: cfg.Write, diff: cfg.Diff}
	if failed := migrateFiles(cfg.ctx, cc.Out, svc, args, opts); failed > 0 {
		glog.Errorf("%d of %d files failed", failed, len(args))
		return cli.ExitCodeErr(1)
	}
	return nil
}

type fileOptions struct {
	write bool
	diff  bool
}

// migrateFiles migrates each file and returns the number that failed.
// Errors are reported on stderr and do not stop the remaining files.
func migrateFiles(ctx context.Context, w io.Writer, svc *core.Service, files []string, opts fileOptions) int {
	failed := 0
	for _, name := range files {
		if err := migrateFile(ctx, w, svc, name, opts); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", name, failColor(err.Error()))
			failed++
		}
	}
	return failed
}

func migrateFile(ctx context.Context, w io.Writer, svc *core.Service, name string, opts fileOptions) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	format := document.FormatFromName(name)
	if format == "" {
		format = document.FormatJSON
	}
	out, rep, err := svc.MigrateBytes(ctx, data, format)
	if err != nil {
		return err
	}
	glog.V(1).Infof("%s: %s", name, describe(rep))
	switch {
	case opts.diff:
		return writeLineDiff(w, name, string(data), string(out))
	case opts.write:
		if !rep.Changed() {
			return nil
		}
		return writeFileAtomic(name, out)
	default:
		_, err := w.Write(out)
		if err == nil && !bytes.HasSuffix(out, []byte("\n")) {
			_, err = io.WriteString(w, "\n")
		}
		return err
	}
}

func describe(rep migrate.Report) string {
	if !rep.Changed() {
		return fmt.Sprintf("already at %s", rep.To)
	}
	from := rep.From.String()
	if rep.Legacy {
		from += " (untagged)"
	}
	return fmt.Sprintf("%s -> %s in %d steps", from, rep.To, len(rep.Applied))
}

// writeFileAtomic replaces name with data, keeping its permissions.
func writeFileAtomic(name string, data []byte) error {
	st, err := os.Stat(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".labdoc-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(st.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
