// Command actorframed is a minimal standalone node daemon: it loads
// configuration, starts an actor.Runtime wired to a cluster.Node, and
// optionally serves the observer HTTP surface, shutting down cleanly on
// SIGINT/SIGTERM. It hosts no application behaviors of its own — those
// are registered by embedding code via Node.Behaviors().Register before
// Start, or delivered entirely through remote spawn from another node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/cluster"
	"github.com/nodeforge/actorframe/config"
	"github.com/nodeforge/actorframe/internal/logging"
	"github.com/nodeforge/actorframe/observer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "actorframed:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to config.yaml/config.yml in the working directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{Level: "info", Format: "console"})
	log := logging.Component("actorframed")

	rt := actor.NewRuntime()
	node := cluster.NewNode(cfg, rt)
	obs := observer.New(rt, node)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	var httpSrv *http.Server
	if cfg.Observer.HTTPAddr != "" {
		h := observer.NewHTTPServer(obs, cfg.Observer.MetricsPath)
		httpSrv = &http.Server{Addr: cfg.Observer.HTTPAddr, Handler: h.Handler()}
		node.Go(func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		log.Info().Str("addr", cfg.Observer.HTTPAddr).Msg("observer HTTP surface listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}

	return node.Stop()
}
