package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/config"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/daemon"
	"github.com/PBLIZZ/MindfulCRM-sub001/pkg/logging"
)

var (
	configFile      = flag.String("config", "", "Configuration file path (TOML)")
	socketPath      = flag.String("socket", "", "Unix socket path override")
	pidFile         = flag.String("pid-file", "", "PID file path override")
	concurrency     = flag.Int("concurrency", 0, "Concurrency ceiling override [1,50]")
	logLevel        = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	shutdownTimeout = flag.Duration("shutdown-timeout", 30*time.Second, "How long to wait for active requests on shutdown")
	showVersion     = flag.Bool("version", false, "Show version information")
)

const version = "1.0.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("llmgovd version %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfiguration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if running, pid, _ := daemon.IsRunning(cfg.PidFile); running {
		fmt.Fprintf(os.Stderr, "Daemon is already running with PID %d\n", pid)
		os.Exit(1)
	}

	logger := logging.New("llmgovd", logging.Level(cfg.LogLevel))

	governor, err := daemon.NewGovernor(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating governor: %v\n", err)
		os.Exit(1)
	}

	server := daemon.NewServer(governor, cfg.SocketPath, logger.WithComponent("server"))

	if err := daemon.WritePidFile(cfg.PidFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing PID file: %v\n", err)
		os.Exit(1)
	}
	defer daemon.RemovePidFile(cfg.PidFile)

	governor.Start()
	if err := server.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting admin server: %v\n", err)
		os.Exit(1)
	}

	logger.Info("daemon started",
		"version", version,
		"pid", os.Getpid(),
		"socket", cfg.SocketPath,
		"concurrency", cfg.Concurrency)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutdown signal received")
	if err := server.Stop(); err != nil {
		logger.LogError("server_stop", err)
	}
	if err := governor.Shutdown(*shutdownTimeout); err != nil {
		logger.LogError("governor_shutdown", err)
		os.Exit(1)
	}
}

// loadConfiguration layers file config and flag overrides over defaults
func loadConfiguration() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.LoadFromFile(*configFile)
	} else {
		cfg, err = config.LoadWithEnvironment()
	}
	if err != nil {
		return nil, err
	}

	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *pidFile != "" {
		cfg.PidFile = *pidFile
	}
	if *concurrency != 0 {
		cfg.Concurrency = *concurrency
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
