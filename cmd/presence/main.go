// Package main provides the entry point for the presence server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/txn2/presence/internal/server"
	"github.com/txn2/presence/pkg/platform"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	channel     string
	showVersion bool
}

func parseFlags(args []string) (serverOptions, error) {
	opts := serverOptions{}
	fs := flag.NewFlagSet("presence", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.address, "address", "", "Listen address (overrides server.address)")
	fs.StringVar(&opts.channel, "channel", "", "Required assertion audience (overrides server.channel)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()
	return ctx
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Printf("presence version %s\n", server.Version)
		return nil
	}

	cfg, err := server.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyConfigOverrides(cfg, opts)
	slog.SetDefault(server.NewLogger(cfg.Logging, os.Stderr))

	p, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return serve(setupSignalHandler(), p)
}

func applyConfigOverrides(cfg *platform.Config, opts serverOptions) {
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if opts.channel != "" {
		cfg.Server.Channel = opts.channel
	}
}

// serve runs p until ctx is canceled, then stops it within the configured
// shutdown timeout.
func serve(ctx context.Context, p *platform.Platform) error {
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	slog.Info("presence server started", "version", server.Version)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), p.Config().Server.ShutdownTimeout)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	slog.Info("presence server stopped")
	return nil
}
