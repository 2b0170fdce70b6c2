// Spins up the pomelo caching proxy, compatible w/ the Redis protocol.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nobletooth/pomelo/pkg/port"
	"github.com/nobletooth/pomelo/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	flag.Parse()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Pomelo build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, os.Kill)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	cacheLayer, err := newCacheLayer()
	if err != nil {
		slog.Error("Failed to build the cache layer.", "err", err)
		os.Exit(1)
	}
	if err := port.RunRedisServer(ctx, cacheLayer); err != nil {
		slog.Error("Pomelo server stopped.", "err", err)
		os.Exit(1)
	}
}
