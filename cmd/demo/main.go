package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/catalog-replicator/internal/cli"
)

func main() {
	records := flag.Int("records", 500, "number of records published on the remote site")
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("publishing %d records on site alpha", *records)
	if err := cli.RunDemo(ctx, os.Stdout, *records, *timeout); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}
