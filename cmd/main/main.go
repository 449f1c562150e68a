package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-data-server/src/app"
	"market-data-server/src/config"
	"market-data-server/src/logger"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file, .env and environment
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(conf.MConfig, conf.Name)
	if conf.Upstream.APIKey == "" {
		appLogger.Warning("EODHD_API_KEY is not set; upstream calls will fail")
	}

	// Build components
	container, err := app.NewContainer(conf, appLogger)
	if err != nil {
		appLogger.Critical("Failed to start: %v", err)
		return
	}

	errs := container.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errs:
		appLogger.Error("Server failed: %v", err)
	}
	container.Shutdown()
}
