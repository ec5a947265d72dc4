package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lawnmowerlatte/debuglater/pkg/config"
	"github.com/lawnmowerlatte/debuglater/pkg/debugger"
	"github.com/lawnmowerlatte/debuglater/pkg/postmortem"
	"github.com/lawnmowerlatte/debuglater/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	root := flag.String("root", "", "project root the dump's relative sources resolve against")
	chdir := flag.Bool("chdir", false, "also change into the project root while loading")
	cfgPath := flag.String("config", config.DefaultFile, "configuration file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: debuglater [flags] <dumpfile>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo())
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debuglater: %v (using defaults)\n", err)
	}

	opts := postmortem.OpenOptions{
		ProjectRoot: *root,
		Chdir:       *chdir,
		DumpOptions: cfg.DumpOptions(),
	}
	if err := postmortem.OpenWithOptions(flag.Arg(0), debugger.PostMortem, opts); err != nil {
		fmt.Fprintf(os.Stderr, "debuglater: %v\n", err)
		os.Exit(1)
	}
}
