package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devtele/lightdb/cmd/lightdb-device/console"
	"github.com/devtele/lightdb/cmd/lightdb-device/stream"
	"github.com/devtele/lightdb/cmd/lightdb-device/subcmd"
	"github.com/devtele/lightdb/cmd/lightdb-device/twin"
	"github.com/devtele/lightdb/internal/config"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	console.Mod,
	stream.Mod,
	twin.Mod,
}

func main() {
	flagConfig := flag.String("config", "lightdb.hcl", "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] command\n\ncommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flag.CommandLine.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
		fmt.Fprintf(flag.CommandLine.Output(), "\nflags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	config := config.MustReadConfig(log, config.NewOsFullReader(), *flagConfig)
	if !config.LogDebug {
		log.SetLevel(log2.LInfo)
	}
	log.Debugf("config server=%s", config.LightDB.URL())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = context.WithValue(ctx, log2.ContextKey, log)

	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
