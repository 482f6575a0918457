package cli

import (
	"context"
	"fmt"
	"time"

	"resumind/internal/capability"
	"resumind/internal/config"
	"resumind/internal/errors"
	"resumind/internal/observability"
	"resumind/internal/opcache"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumind",
	Short: "A CLI tool for AI-powered resume analysis",
	Long: `Resumind analyzes resumes against job descriptions using AI. It uploads
a resume PDF, renders a preview image, requests structured feedback (ATS,
tone, content, structure, skills) and stores the annotated record for
later retrieval.`,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("config not found in context")
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) (*errors.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger, nil
	}
	return nil, fmt.Errorf("logger not found in context")
}

// setupObservability initializes tracing and metrics. Failures disable
// observability rather than aborting the command.
func setupObservability(cfg *config.Config, logger *errors.Logger) (*observability.ObservabilityManager, func()) {
	om, err := observability.NewObservabilityManager(
		observability.GetObservabilityConfig(cfg, Version), cfg)
	if err != nil {
		logger.Warn("Observability could not be initialized", "error", err.Error())
		return nil, func() {}
	}
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := om.Shutdown(ctx); err != nil {
			logger.LogError(err, "Failed to shut down observability")
		}
	}
	return om, shutdown
}

// setupOperations assembles the capability client, registers it with a
// gateway and returns the operation catalog plus a teardown function.
func setupOperations(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*opcache.Operations, func(), error) {
	client, err := capability.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	gateway := capability.NewGateway(cfg.Gateway.InitTimeout, cfg.Gateway.PollInterval, logger)
	gateway.Register(client)

	cache := opcache.NewCache(logger)
	ops := opcache.NewOperations(gateway, cache, cfg.AI.Model, logger)

	if err := ops.Init(ctx); err != nil {
		return nil, nil, err
	}

	var watcher *opcache.StorageWatcher
	if dir := capability.StorageDir(client); dir != "" {
		watcher = opcache.NewStorageWatcher(dir, cache, 0, logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("Storage watcher could not be started", "error", err.Error())
			watcher = nil
		}
	}

	teardown := func() {
		if watcher != nil {
			_ = watcher.Stop()
		}
		gateway.Clear()
	}
	return ops, teardown, nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(img2txtCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(versionCmd)
}
