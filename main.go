// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/phsym/console-slog"
	"github.com/spf13/pflag"

	"github.com/ffutop/nudam-gateway/internal/bridge"
	"github.com/ffutop/nudam-gateway/internal/config"
	"github.com/ffutop/nudam-gateway/internal/gateway"
	nudambus "github.com/ffutop/nudam-gateway/internal/nudam"
	"github.com/ffutop/nudam-gateway/internal/stats"
	"github.com/ffutop/nudam-gateway/transport"
	"github.com/ffutop/nudam-gateway/transport/nudam"
	"github.com/ffutop/nudam-gateway/transport/tcp"
)

func main() {
	pflag.StringP("config", "c", "", "Configuration file path.")
	pflag.StringP("log_level", "v", "", "Log verbosity level (debug, info, warn, error).")
	pflag.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	pflag.String("log_format", "", "Log format (text, json, console).")
	pflag.Parse()

	configFile, _ := pflag.CommandLine.GetString("config")

	// Load Configuration
	cfg, err := config.LoadConfig(configFile, pflag.CommandLine)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting NuDAM Gateway...")

	recorder, err := stats.NewRecorder(stats.NewStorage(cfg.Stats.Persistence))
	if err != nil {
		slog.Error("Failed to set up request counters", "err", err)
		os.Exit(1)
	}
	observer := bridge.Observers{
		bridge.LogObserver{Logger: slog.Default(), ZeroBased: cfg.Log.ZeroBasedRegisters},
		recorder,
	}

	// Create Gateways
	var gateways []*gateway.Gateway
	for _, gwCfg := range cfg.Gateways {
		gw, err := buildGateway(gwCfg, observer)
		if err != nil {
			slog.Error("Failed to set up gateway", "gateway", gwCfg.Name, "err", err)
			fmt.Fprintf(os.Stderr, "Error: %s\n", nudambus.Describe(err))
			recorder.Close()
			os.Exit(1)
		}
		gateways = append(gateways, gw)
	}

	if len(gateways) == 0 {
		slog.Error("No valid gateways configured. Exiting.")
		recorder.Close()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start Gateways
	var wg sync.WaitGroup
	failed := make(chan struct{}, len(gateways))
	for _, gw := range gateways {
		wg.Add(1)
		go func(g *gateway.Gateway) {
			defer wg.Done()
			if err := g.Start(ctx); err != nil {
				slog.Error("Gateway stopped with error", "name", g.Name, "err", err)
				fmt.Fprintf(os.Stderr, "Error: %s\n", nudambus.Describe(err))
				failed <- struct{}{}
			}
		}(gw)
	}

	if cfg.Stats.Interval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Stats.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					recorder.Log(slog.Default())
					if err := recorder.Save(); err != nil {
						slog.Warn("Failed to save request counters", "err", err)
					}
				}
			}
		}()
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-sigChan:
	case <-failed:
		exitCode = 1
	}

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
	recorder.Log(slog.Default())
	if err := recorder.Close(); err != nil {
		slog.Warn("Failed to save request counters", "err", err)
	}
	slog.Info("Goodbye.")
	os.Exit(exitCode)
}

// buildGateway creates the upstreams and the routed buses of one gateway.
// A bus without slave_ids becomes the default route.
func buildGateway(gwCfg config.GatewayConfig, observer bridge.Observer) (*gateway.Gateway, error) {
	routes := make(map[byte]transport.Downstream)
	var defaultRoute transport.Downstream
	for _, dsCfg := range gwCfg.Downstreams {
		if dsCfg.Type != "" && dsCfg.Type != "nudam" {
			return nil, fmt.Errorf("downstream %s: unknown type %q", dsCfg.Name, dsCfg.Type)
		}
		ids, err := gateway.ParseSlaveIDs(dsCfg.SlaveIDs)
		if err != nil {
			return nil, fmt.Errorf("downstream %s: %w", dsCfg.Name, err)
		}
		ds, err := nudam.NewClient(dsCfg, observer)
		if err != nil {
			return nil, fmt.Errorf("downstream %s: %w", dsCfg.Name, err)
		}
		if len(ids) == 0 {
			if defaultRoute != nil {
				return nil, fmt.Errorf("downstream %s: more than one bus without slave_ids", dsCfg.Name)
			}
			defaultRoute = ds
			continue
		}
		for _, id := range ids {
			if _, ok := routes[id]; ok {
				return nil, fmt.Errorf("downstream %s: unit ID %d already routed", dsCfg.Name, id)
			}
			routes[id] = ds
		}
	}

	var upstreams []transport.Upstream
	for _, usCfg := range gwCfg.Upstreams {
		switch usCfg.Type {
		case "tcp":
			upstreams = append(upstreams, tcp.NewServer(usCfg.Tcp.Address))
		default:
			return nil, fmt.Errorf("unknown upstream type %q", usCfg.Type)
		}
	}
	if len(upstreams) == 0 {
		return nil, errors.New("no upstream configured")
	}

	return gateway.NewGateway(gwCfg.Name, upstreams, routes, defaultRoute), nil
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
		} else {
			w = f
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "console":
		handler = console.NewHandler(w, &console.HandlerOptions{Level: level})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
