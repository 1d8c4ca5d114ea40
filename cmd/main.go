package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"media-client-bridge/internal/bridge"
	"media-client-bridge/internal/config"
	"media-client-bridge/internal/logging"
)

// version is set at build time via -ldflags
var version = "dev"

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "media-client-bridge",
	Short: "Media Client Bridge - secure credentials and playback decisions for media clients",
	Long: `A lightweight local agent backing media client applications. It stores
media server credentials encrypted under rotating keys, answers direct-play
capability queries for the device it runs on, and optionally gates credential
access behind a biometric prompt. Clients talk to it over a local HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration honoring the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// runBridge runs the agent until interrupted
func runBridge() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Initialize(cfg.LogLevel)

	manager, err := bridge.NewManager(cfg, bridge.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to initialize bridge: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	if err := manager.Start(ctx); err != nil {
		manager.Stop()
		return fmt.Errorf("bridge execution failed: %w", err)
	}

	return manager.Stop()
}
