package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/scott-cotton/cli"

	"labdoc/internal/core"
	"labdoc/internal/docstore"
	"labdoc/internal/ledger"
	"labdoc/internal/patchset"
	"labdoc/pkg/migrate"
)

type MainConfig struct {
	V       int    `cli:"name=v desc='log verbosity, 2 logs every operation'"`
	Patches string `cli:"name=patches desc='patch source: bundled, a directory, an http(s) URL or store:<prefix> (default $LABDOC_PATCH_SOURCE)'"`
	Color   bool   `cli:"name=color desc='force coloured status output'"`

	Metrics    string `cli:"name=metrics desc='metrics exporter: expvar or prometheus (default $LABDOC_METRICS)'"`
	MetricsOut string `cli:"name=metrics-out desc='write the metrics to this file when the command ends'"`
	Trace      string `cli:"name=trace desc='write one JSON line per service operation to this file'"`

	ctx  context.Context
	Main *cli.Command
}

// setupLogging points glog at stderr with the requested verbosity.
func (cfg *MainConfig) setupLogging() {
	_ = flag.Set("logtostderr", "true")
	_ = flag.Set("v", strconv.Itoa(cfg.V))
}

// patchSpec is -patches, falling back to LABDOC_PATCH_SOURCE.
func (cfg *MainConfig) patchSpec() string {
	if cfg.Patches != "" {
		return cfg.Patches
	}
	return os.Getenv("LABDOC_PATCH_SOURCE")
}

// loadChain reads the configured patch source. A store: source without a
// store opens the env-configured one.
func (cfg *MainConfig) loadChain(store docstore.Store) (*migrate.Chain, error) {
	spec := cfg.patchSpec()
	if store == nil && strings.HasPrefix(spec, "store:") {
		s, err := docstore.Open(cfg.ctx)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		store = s
	}
	src, err := patchset.FromSpec(spec, store)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("loading patches from %s", src)
	return patchset.LoadChain(cfg.ctx, src, patchset.SampleTag())
}

// openService wires the env-configured store and ledger into a service,
// together with the exporters chosen by -metrics and -trace. The returned
// close function releases the ledger and flushes the exporters.
func (cfg *MainConfig) openService(opts ...core.Option) (*core.Service, func(), error) {
	store, err := docstore.Open(cfg.ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open document store: %w", err)
	}
	chain, err := cfg.loadChain(store)
	if err != nil {
		return nil, nil, err
	}
	obs, err := cfg.observers()
	if err != nil {
		return nil, nil, err
	}
	led, err := ledger.Open(cfg.ctx)
	if err != nil {
		_ = obs.close()
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	base := append([]core.Option{core.WithLogger(glogLogger{}), core.WithLedger(led)}, obs.opts...)
	svc := core.NewService(store, chain, append(base, opts...)...)
	return svc, func() {
		_ = led.Close()
		_ = obs.close()
	}, nil
}

type MigrateConfig struct {
	*MainConfig
	Write bool `cli:"name=w desc='write the result back to each file instead of stdout'"`
	Diff  bool `cli:"name=diff desc='print a line diff of each change instead of the document'"`

	Migrate *cli.Command
}

type StoreConfig struct {
	*MainConfig

	Store *cli.Command
}

type StoreMigrateConfig struct {
	*StoreConfig
	Prefix string `cli:"name=prefix desc='only migrate keys with this prefix'"`
	Dry    bool   `cli:"name=dry desc='report what would change without writing'"`

	Migrate *cli.Command
}

type StoreInspectConfig struct {
	*StoreConfig

	Inspect *cli.Command
}

type VersionConfig struct {
	*MainConfig

	Version *cli.Command
}

type ChainConfig struct {
	*MainConfig
	Ops bool `cli:"name=ops desc='list the operations of every patch'"`

	Chain *cli.Command
}

type HistoryConfig struct {
	*MainConfig

	History *cli.Command
}
