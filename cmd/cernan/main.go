// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"golang.org/x/sync/errgroup"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/cernan/cernan/internal/config"
	"github.com/cernan/cernan/internal/metrics"
	"github.com/cernan/cernan/internal/topology"
)

// verbosity counts repeated `-v` occurrences (error, +warn, +info, +debug,
// +trace).
type verbosity int

func (v *verbosity) String() string   { return fmt.Sprintf("%d", *v) }
func (v *verbosity) Set(string) error { *v++; return nil }
func (v *verbosity) IsBoolFlag() bool { return true }

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var v verbosity
	var gopsEnabled bool
	var metricsAddr string

	flag.StringVar(&configPath, "C", "", "path to the topology configuration file")
	flag.StringVar(&configPath, "config", "", "path to the topology configuration file (alias of -C)")
	flag.Var(&v, "v", "increase log verbosity (repeatable)")
	flag.BoolVar(&gopsEnabled, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve /metrics on this address")
	flag.Parse()

	cernanlog.SetVerbosity(int(v))

	if configPath == "" {
		cernanlog.Error("a configuration file is required: -C/--config <path>")
		return 2
	}

	if gopsEnabled {
		if err := agent.Listen(agent.Options{}); err != nil {
			cernanlog.Errorf("gops/agent.Listen failed: %s", err)
			return 2
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		cernanlog.Errorf("config: %s", err)
		return 2
	}

	topo, err := topology.Build(cfg)
	if err != nil {
		cernanlog.Errorf("topology: %s", err)
		return 2
	}
	defer func() {
		if err := topo.Close(); err != nil {
			cernanlog.Errorf("topology: close: %s", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	for _, r := range topo.Runners {
		r := r
		g.Go(func() error {
			if err := r.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			return nil
		})
	}

	// A failing pulser is the one node whose error is fatal rather than
	// logged-and-continue: without flushes, every sink's bins accumulate
	// unbounded.
	g.Go(func() error {
		if err := topo.Pulser.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("pulser: %w", err)
		}
		return nil
	})

	topo.WatchMetrics(gctx, 0)

	if metricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, metricsAddr) })
	}

	if err := g.Wait(); err != nil {
		cernanlog.Errorf("fatal: %s", err)
		return 1
	}

	cernanlog.Info("shutdown complete")
	return 0
}
