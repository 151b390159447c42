// Command vibedbg-host runs the debugger extension's pipe server and
// status API as a standalone process, against the simulated debugger
// adapter. A real deployment loads the extension in-process inside the
// debugger host instead of running this binary; vibedbg-host exists to
// develop and exercise the rest of the stack without a live target.
//
// Usage:
//
//	vibedbg-host
//
// Configuration is read entirely from VIBEDBG_* environment variables; see
// internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/vibedbg/vibedbg-ext/internal/config"
	"github.com/vibedbg/vibedbg-ext/internal/extension"
	"github.com/vibedbg/vibedbg-ext/internal/logging"
	"github.com/vibedbg/vibedbg-ext/internal/simadapter"
	"github.com/vibedbg/vibedbg-ext/internal/statusapi"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	cfg := config.FromEnv()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := logging.New(os.Stderr, level, cfg.LogPretty)
	logger.Info("vibedbg-host starting", "version", Version, "commit", GitCommit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	controller := extension.Get()
	extCfg := extension.Config{Engine: cfg.EngineConfig(), Pipe: cfg.PipeConfig()}
	if err := controller.Initialize(extCfg, simadapter.New(), logger); err != nil {
		logger.Error("failed to initialize extension", err)
		os.Exit(1)
	}
	defer controller.Shutdown()

	status := statusapi.New(controller, logger)
	statusErr := make(chan error, 1)
	go func() { statusErr <- status.Serve(ctx, cfg.StatusAddr) }()

	pipeErr := make(chan error, 1)
	go func() { pipeErr <- controller.Serve(ctx) }()

	select {
	case <-ctx.Done():
		_ = status.Close()
		controller.Shutdown()
	case err := <-pipeErr:
		if err != nil {
			logger.Error("pipe server exited", err)
		}
	case err := <-statusErr:
		if err != nil {
			logger.Error("status API exited", err)
		}
	}
}
