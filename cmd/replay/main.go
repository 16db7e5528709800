package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hyprpal/playpal/internal/scenario"
	"github.com/hyprpal/playpal/internal/util"
)

func main() {
	logLevel := flag.String("log-level", "warn", "log level (trace|debug|info|warn|error)")
	timeout := flag.Duration("timeout", 10*time.Second, "abort the replay after this long")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <scenario.yaml>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := false
	for _, path := range flag.Args() {
		sc, err := scenario.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		if err := scenario.Play(ctx, sc, os.Stdout, logger); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
		}
		fmt.Println()
	}
	if failed {
		os.Exit(1)
	}
}
