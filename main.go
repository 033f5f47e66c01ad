// main.go
// Application entry point: loads configuration, initializes the logger and
// runs the live activity bridge until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erilali/liveactivity/internal/api"
	"github.com/erilali/liveactivity/internal/config"
	"github.com/erilali/liveactivity/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logConfig := cfg.LogConfig()
	logger.InitLogger(logConfig)
	serverLogger := logger.NewLogger("server")
	serverLogger.WithFields(map[string]interface{}{
		"level":       logConfig.Level,
		"format":      logConfig.Format,
		"log_to_file": logConfig.FilePath != "",
		"broker":      cfg.Broker,
	}).Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := api.StartServer(ctx, cfg, serverLogger); err != nil {
		serverLogger.Fatalf("Server failed: %v", err)
	}
}
