// Command ripd is the iterative recursive DNS resolver daemon: it
// serves stub clients over UDP, answering from its on-disk persistent
// cache where possible and otherwise walking the DNS hierarchy from the
// root down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnsscience/ripd/internal/config"
	"github.com/dnsscience/ripd/internal/resolver"
	"github.com/dnsscience/ripd/internal/server"
)

func main() {
	port := flag.Int("port", 53, "UDP listen port")
	configPath := flag.String("config", "", "path to optional YAML config file")
	hintsPath := flag.String("hints", "", "root hints file path (overrides config default)")
	aCachePath := flag.String("acache", "", "A-record cache file path (overrides config default)")
	nsCachePath := flag.String("nscache", "", "NS-record cache file path (overrides config default)")
	metricsAddr := flag.String("metrics", "", "metrics listen address (overrides config default; empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ripd: loading config: %v\n", err)
		os.Exit(1)
	}

	cfg.ListenAddr = fmt.Sprintf(":%d", *port)
	if *hintsPath != "" {
		cfg.HintsPath = *hintsPath
	}
	if *aCachePath != "" {
		cfg.ACachePath = *aCachePath
	}
	if *nsCachePath != "" {
		cfg.NSCachePath = *nsCachePath
	}
	if flagWasSet("metrics") {
		cfg.MetricsListenAddr = *metricsAddr
	}

	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ripd: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("ripd: listening on %s (hints=%s acache=%s nscache=%s policy=%s)\n",
		cfg.ListenAddr, cfg.HintsPath, cfg.ACachePath, cfg.NSCachePath, cfg.NoConnectivityPolicy)

	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ripd: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// flagWasSet reports whether -metrics was explicitly passed, so an
// empty string can distinguish "disable metrics" from "use the config
// file's value".
func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// exitCode maps a fatal Serve error to a non-zero process exit status,
// per §6: non-zero on bind failure or fatal-policy transport
// exhaustion.
func exitCode(err error) int {
	if errors.Is(err, resolver.ErrNoConnectivity) {
		return 2
	}
	return 1
}


