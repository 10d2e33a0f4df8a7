// Package main serves an experiment's runner over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/config"
	httpHandler "go.ngs.io/regional-ocean/internal/http"
	"go.ngs.io/regional-ocean/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("regional-ocean server version %s\n", version)
		return
	}

	// Load configuration from environment.
	port := getEnv("PORT", "8080")
	configPath := getEnv("CONFIG_PATH", "./experiment.toml")

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := cfg.Logger()
	log.WithFields(logrus.Fields{
		"port":       port,
		"config":     configPath,
		"experiment": cfg.Name,
		"output_dir": cfg.OutputDir,
	}).Info("starting server")

	runner, err := usecase.Setup(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up experiment")
	}
	defer func() { _ = runner.Close() }()
	if runner.TidalStore == nil {
		log.Info("tidal store disabled (no tides.dir configured)")
	}

	router := httpHandler.SetupRouter(runner)

	addr := fmt.Sprintf(":%s", port)
	log.Infof("health check: http://localhost:%s/health", port)
	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Regional ocean setup server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  CONFIG_PATH             Experiment TOML file (default: ./experiment.toml)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health                      Health check")
	fmt.Println("  GET  /v1/grid                     Experiment grid summary")
	fmt.Println("  GET  /v1/outputs?kind=            Files recorded in the manifest")
	fmt.Println("  POST /v1/runs/grid                Write grid files")
	fmt.Println("  POST /v1/runs/initial-condition   Build the initial condition")
	fmt.Println("  POST /v1/runs/segments            Build boundary segments")
	fmt.Println("  POST /v1/runs/tides               Build tidal forcing")
	fmt.Println("  GET  /v1/runs/last                Status of the most recent run")
	fmt.Println()
}
