// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/conveyor-foundation/conveyor/lib/artifact"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/deploy"
	"github.com/conveyor-foundation/conveyor/lib/engine"
	"github.com/conveyor-foundation/conveyor/lib/eventbus"
	"github.com/conveyor-foundation/conveyor/lib/logstore"
	"github.com/conveyor-foundation/conveyor/lib/pipelinedef"
	"github.com/conveyor-foundation/conveyor/lib/runlog"
	"github.com/conveyor-foundation/conveyor/lib/schema"
	"github.com/conveyor-foundation/conveyor/lib/service"
	"github.com/conveyor-foundation/conveyor/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath     string
		runnerSocket   string
		definitionsDir string
		stateDir       string
		strategies     string
		logLevel       string
		showVersion    bool
	)

	flag.StringVar(&socketPath, "socket", "/run/conveyor/control.sock", "control socket path")
	flag.StringVar(&runnerSocket, "runner-socket", "", "runner socket to dispatch jobs to (optional)")
	flag.StringVar(&definitionsDir, "definitions", "", "directory of pipeline definition files (required)")
	flag.StringVar(&stateDir, "state-dir", "/var/lib/conveyor", "directory for the run archive, logs, and artifacts")
	flag.StringVar(&strategies, "strategies", "", "environment=strategy overrides, comma separated (e.g. prod=canary)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("conveyord %s\n", version.Info())
		return nil
	}
	if definitionsDir == "" {
		return fmt.Errorf("--definitions is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	definitions, err := loadDefinitions(definitionsDir, logger)
	if err != nil {
		return err
	}

	archive, err := runlog.Open(runlog.Config{
		Path:   filepath.Join(stateDir, "runs.db"),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening run archive: %w", err)
	}
	defer archive.Close()

	logs, err := logstore.NewStore(filepath.Join(stateDir, "logs"))
	if err != nil {
		return fmt.Errorf("opening log store: %w", err)
	}
	artifacts, err := artifact.NewStore(filepath.Join(stateDir, "artifacts"))
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}

	clk := clock.Real()
	bus := eventbus.New(logger)
	defer bus.Close()

	strategyOverrides, err := parseStrategies(strategies)
	if err != nil {
		return err
	}
	tracker, err := deploy.NewTracker(deploy.Config{
		Clock:      clk,
		Bus:        bus,
		Logger:     logger,
		Strategies: strategyOverrides,
	})
	if err != nil {
		return fmt.Errorf("creating deployment tracker: %w", err)
	}

	var invoker engine.RunnerInvoker
	if runnerSocket != "" {
		invoker = newRunnerClient(runnerSocket)
		logger.Info("dispatching jobs to runner", "socket", runnerSocket)
	} else {
		invoker = &passiveInvoker{logger: logger}
		logger.Warn("no runner socket configured; jobs wait for external reports")
	}

	eng, err := engine.New(engine.Config{
		Definitions: definitions,
		Invoker:     invoker,
		Clock:       clk,
		Bus:         bus,
		Tracker:     tracker,
		Archive:     archive,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	daemon := &daemonServer{
		engine:      eng,
		tracker:     tracker,
		definitions: definitions,
		logs:        logs,
		artifacts:   artifacts,
		clock:       clk,
		startedAt:   clk.Now(),
		logger:      logger,
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	server := service.NewSocketServer(socketPath, logger)
	daemon.registerActions(server)

	logger.Info("conveyord starting",
		"version", version.Short(),
		"pipelines", len(definitions.IDs()),
		"socket", socketPath,
	)
	return server.Serve(ctx)
}

// loadDefinitions reads every pipeline definition file in dir. A file
// that fails to parse or validate aborts startup: a daemon silently
// dropping a pipeline is worse than one that refuses to start.
func loadDefinitions(dir string, logger *slog.Logger) (*engine.MemoryDefinitionStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions directory: %w", err)
	}

	store := engine.NewMemoryDefinitionStore()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml", ".json", ".jsonc":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := pipelinedef.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		if issues := pipelinedef.Validate(def); len(issues) > 0 {
			return nil, fmt.Errorf("invalid definition %s:\n  %s", path, strings.Join(issues, "\n  "))
		}
		if err := store.Put(def); err != nil {
			return nil, fmt.Errorf("registering %s: %w", path, err)
		}
		logger.Info("pipeline loaded", "id", def.ID, "file", entry.Name())
	}
	if len(store.IDs()) == 0 {
		return nil, fmt.Errorf("no pipeline definitions found in %s", dir)
	}
	return store, nil
}

// parseStrategies parses "env=strategy" pairs into the tracker's
// per-environment strategy map.
func parseStrategies(value string) (map[string]schema.Strategy, error) {
	if value == "" {
		return nil, nil
	}
	overrides := make(map[string]schema.Strategy)
	for _, pair := range strings.Split(value, ",") {
		environment, name, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || environment == "" {
			return nil, fmt.Errorf("invalid --strategies entry %q, want env=strategy", pair)
		}
		strategy := schema.Strategy(name)
		if !strategy.Valid() {
			return nil, fmt.Errorf("unknown deployment strategy %q for environment %s", name, environment)
		}
		overrides[environment] = strategy
	}
	return overrides, nil
}
