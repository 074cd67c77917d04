package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/smartmail/cmd/smartmail/decode"
	"github.com/temoto/smartmail/cmd/smartmail/listen"
	"github.com/temoto/smartmail/cmd/smartmail/subcmd"
	"github.com/temoto/smartmail/config"
	"github.com/temoto/smartmail/log2"
)

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	listen.Mod,
	decode.Mod,
}

func main() {
	flagset := flag.NewFlagSet("smartmail", flag.ExitOnError)
	flagConfig := flagset.String("config", config.DefaultPath, "HCL config file, environment overrides it")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "usage: smartmail [-config=%s] [command] [args]\ncommands:\n", config.DefaultPath)
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])
	configExplicit := false
	flagset.Visit(func(f *flag.Flag) { configExplicit = configExplicit || f.Name == "config" })

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	command := flagset.Arg(0)
	if command == "" {
		command = listen.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}
	if mod.Name == listen.Mod.Name {
		printBanner(os.Stdout)
	}

	r := &subcmd.Runtime{
		Log:            log,
		ConfigPath:     *flagConfig,
		ConfigExplicit: configExplicit,
	}
	if flagset.NArg() > 1 {
		r.Args = flagset.Args()[1:]
	}
	err = mod.Main(context.Background(), r)
	if err != nil {
		log.Errorf("%s: %s", mod.Name, errors.ErrorStack(err))
		os.Exit(subcmd.ExitCode(err))
	}
}
