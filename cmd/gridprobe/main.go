// Package main provides a CLI that walks a remote grid and prints each window.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/pricedesk/internal/platform/config"

	gridprobecmd "github.com/louisbranch/pricedesk/internal/cmd/gridprobe"
)

func main() {
	cfg, err := gridprobecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	log.SetPrefix("[GRIDPROBE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gridprobecmd.Run(ctx, cfg); err != nil {
		config.Exitf("Error: %v", err)
	}
}
