package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	worldquerycmd "github.com/louisbranch/worldstate/internal/cmd/worldquery"
)

func main() {
	cfg, err := worldquerycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[WORLDQUERY] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worldquerycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}
