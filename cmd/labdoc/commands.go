package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/scott-cotton/cli"
)

func MainCommand(ctx context.Context) *cli.Command {
	cfg := &MainConfig{ctx: ctx}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, "labdoc").
		WithSynopsis("labdoc [-v n] [-patches src] [-metrics kind -metrics-out file] [-trace file] command [opts]").
		WithDescription("labdoc upgrades lab sample documents to the current schema version.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return labdocMain(cfg, cc, args)
		}).
		WithSubs(
			MigrateCommand(cfg),
			StoreCommand(cfg),
			VersionCommand(cfg),
			ChainCommand(cfg),
			HistoryCommand(cfg))
}

func labdocMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		return err
	}
	cfg.setupLogging()
	setupColor(cfg, cc.Out)
	return dispatch(cfg.Main, cc, args)
}

// dispatch runs the subcommand named by args[0].
func dispatch(parent *cli.Command, cc *cli.Context, args []string) error {
	if len(args) == 0 {
		return cli.ErrNoCommandProvided
	}
	sub := parent.FindSub(cc, args[0])
	if sub == nil {
		return fmt.Errorf("%w: %q not found", cli.ErrNoSuchCommand, args[0])
	}
	err := sub.Run(cc, args[1:])
	if errors.Is(err, cli.ErrUsage) {
		sub.Usage(cc, err)
		os.Exit(sub.Exit(cc, err))
	}
	return err
}

func MigrateCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &MigrateConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Migrate, "migrate").
		WithAliases("m").
		WithSynopsis("migrate [-w] [-diff] files...").
		WithDescription("migrate local JSON or YAML files to the current version").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return migrateCmd(cfg, cc, args)
		})
}

func StoreCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &StoreConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Store, "store").
		WithAliases("s").
		WithSynopsis("store (migrate|inspect) [opts]").
		WithDescription("work with documents in the store selected by LABDOC_STORE_DRIVER").
		WithRun(func(cc *cli.Context, args []string) error {
			args, err := cfg.Store.Parse(cc, args)
			if err != nil {
				return err
			}
			return dispatch(cfg.Store, cc, args)
		}).
		WithSubs(
			StoreMigrateCommand(cfg),
			StoreInspectCommand(cfg))
}

func StoreMigrateCommand(storeCfg *StoreConfig) *cli.Command {
	cfg := &StoreMigrateConfig{StoreConfig: storeCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Migrate, "migrate").
		WithSynopsis("store migrate [-prefix p] [-dry]").
		WithDescription("migrate every stored document under a prefix and record the results in the ledger").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return storeMigrateCmd(cfg, cc, args)
		})
}

func StoreInspectCommand(storeCfg *StoreConfig) *cli.Command {
	cfg := &StoreInspectConfig{StoreConfig: storeCfg}
	return cli.NewCommandAt(&cfg.Inspect, "inspect").
		WithSynopsis("store inspect key...").
		WithDescription("show the version of stored documents and the patches a migration would apply").
		WithRun(func(cc *cli.Context, args []string) error {
			return storeInspectCmd(cfg, cc, args)
		})
}

func VersionCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &VersionConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.Version, "version").
		WithAliases("v").
		WithSynopsis("version files...").
		WithDescription("print the schema version of each file").
		WithRun(func(cc *cli.Context, args []string) error {
			return versionCmd(cfg, cc, args)
		})
}

func ChainCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ChainConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Chain, "chain").
		WithAliases("c").
		WithSynopsis("chain [-ops]").
		WithDescription("validate the patch source and print the chain in order").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return chainCmd(cfg, cc, args)
		})
}

func HistoryCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &HistoryConfig{MainConfig: mainCfg}
	return cli.NewCommandAt(&cfg.History, "history").
		WithAliases("h").
		WithSynopsis("history key").
		WithDescription("print the ledger records of a stored document").
		WithRun(func(cc *cli.Context, args []string) error {
			return historyCmd(cfg, cc, args)
		})
}
