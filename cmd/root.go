// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/ocpctl/ocp>

// Package cmd wires configuration, logging, the substrate, the node, and
// every background server into a single runnable process.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ocpctl/ocp/internal/config"
	"github.com/ocpctl/ocp/internal/httpapi"
	"github.com/ocpctl/ocp/internal/logging"
	"github.com/ocpctl/ocp/internal/ocp"
	"github.com/ocpctl/ocp/internal/ocpmetrics"
	"github.com/ocpctl/ocp/internal/pprof"
	"github.com/ocpctl/ocp/internal/substrate"
)

const metricsSampleInterval = 5 * time.Second

// NewCommand builds the root ocp command.
//
// Deviation from the teacher: upstream wires its Configulator instance into
// the cobra command's context in main.go (cmd/root.go's loadConfig reads it
// back via configulator.FromContext), but that main.go-side wiring was not
// present anywhere in the retrieved reference pack. This builds the
// Configulator directly in runRoot instead (documented in DESIGN.md).
func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ocp",
		Short:   "Run an OCP node",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("ocp - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logging.SetDefault(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := setupTracing(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	defer func() {
		if err := cleanup(ctx); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	sub, err := substrate.New(ctx, substrateConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to construct substrate: %w", err)
	}
	sub.SetName(cfg.Node.Name)

	node := ocp.NewNode(sub, nil)
	if cfg.Node.Group != "" {
		node.Groups = []string{cfg.Node.Group}
	}

	metrics := ocpmetrics.New()
	node.SetHooks(metrics.Hooks())

	scheduler, err := setupScheduler(node, metrics)
	if err != nil {
		return fmt.Errorf("failed to setup scheduler: %w", err)
	}
	scheduler.Start()

	pprofServer := pprof.NewServer(cfg)
	metricsServer := ocpmetrics.NewServer(cfg)
	httpServer := httpapi.NewServer(cfg, node)

	startBackgroundServer("pprof", func() error { return pprofServer.Start() })
	startBackgroundServer("metrics", func() error { return metricsServer.Start() })
	startBackgroundServer("httpapi", func() error { return httpServer.Start() })

	nodeErrCh := make(chan error, 1)
	go func() {
		nodeErrCh <- node.Run(ctx)
	}()

	slog.Info("node running", "self", node.Self(), "name", cfg.Node.Name)

	return waitForShutdown(ctx, scheduler, node, nodeErrCh, httpServer, metricsServer, pprofServer)
}

// loadConfig builds and loads the typed configuration from flags,
// environment variables, and an optional config file.
func loadConfig() (*config.Config, error) {
	cfg, err := configulator.New[config.Config]().LoadWithoutValidation()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func substrateConfig(cfg *config.Config) substrate.Config {
	backend := substrate.BackendMemory
	if cfg.Substrate.Backend == config.SubstrateBackendRedis {
		backend = substrate.BackendRedis
	}
	return substrate.Config{
		Backend:   backend,
		MemoryBus: cfg.Node.Group,
		Redis: substrate.RedisOptions{
			Host:             cfg.Redis.Host,
			Port:             cfg.Redis.Port,
			Password:         cfg.Redis.Password,
			TraceEnabled:     cfg.Metrics.OTLPEndpoint != "",
			PresenceInterval: time.Duration(cfg.Substrate.PresenceInterval) * time.Second,
			PresenceTTL:      time.Duration(cfg.Substrate.PresenceTTL) * time.Second,
		},
	}
}

// setupTracing initializes OpenTelemetry tracing if configured. When tracing
// is not configured it returns a no-op cleanup function.
func setupTracing(cfg *config.Config) (func(context.Context) error, error) {
	if cfg.Metrics.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	return initTracer(cfg)
}

func initTracer(cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Metrics.OTLPEndpoint),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "ocp"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resources: %w", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown, nil
}

// setupScheduler schedules periodic gauge sampling of the node's registry
// and subscription state, since those are not naturally event-driven.
func setupScheduler(node *ocp.Node, metrics *ocpmetrics.Metrics) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(metricsSampleInterval),
		gocron.NewTask(func() { metrics.Sample(node) }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule metrics sampling: %w", err)
	}
	return scheduler, nil
}

func startBackgroundServer(name string, start func() error) {
	go func() {
		if err := start(); err != nil {
			slog.Error("background server failed", "server", name, "error", err)
		}
	}()
}

// waitForShutdown blocks until ctx is canceled (main's signal.NotifyContext
// fires on SIGINT/SIGTERM) or the node loop exits on its own, then performs
// an orderly shutdown of every background server.
func waitForShutdown(
	ctx context.Context,
	scheduler gocron.Scheduler,
	node *ocp.Node,
	nodeErrCh <-chan error,
	httpServer *httpapi.Server,
	metricsServer *ocpmetrics.Server,
	pprofServer *pprof.Server,
) error {
	select {
	case <-ctx.Done():
		slog.Error("shutting down due to signal")
	case err := <-nodeErrCh:
		if err != nil {
			slog.Error("node loop exited with error", "error", err)
		}
	}

	wg := new(sync.WaitGroup)
	wg.Add(4)

	go func() {
		defer wg.Done()
		if err := scheduler.Shutdown(); err != nil {
			slog.Error("failed to stop scheduler", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := node.Stop(); err != nil {
			slog.Error("failed to stop node", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		const timeout = 5 * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			slog.Error("failed to stop httpapi server", "error", err)
		}
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("failed to stop metrics server", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		const timeout = 5 * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := pprofServer.Stop(shutdownCtx); err != nil {
			slog.Error("failed to stop pprof server", "error", err)
		}
	}()

	const timeout = 10 * time.Second
	c := make(chan struct{})
	go func() {
		defer close(c)
		wg.Wait()
	}()
	select {
	case <-c:
		slog.Info("all servers stopped, shutting down gracefully")
	case <-time.After(timeout):
		slog.Error("shutdown timed out, forcing exit")
	}
	return nil
}
