package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"podfetch/backend"
	"podfetch/internal/api"
)

func main() {
	// Load config (env vars override file config)
	config, err := backend.LoadConfigWithEnv()
	if err != nil {
		backend.InitLogger("")
		backend.Logger.Warn("could not load config, using defaults", "error", err)
		config = backend.GetDefaultConfig()
	} else {
		backend.InitLogger(config.LogLevel)
	}
	backend.Logger.Info("podfetch server starting")

	// Ensure output folders exist
	if err := config.EnsureDownloadFolders(); err != nil {
		backend.Logger.Warn("could not create output folders", "error", err)
	}

	orch, err := backend.NewOrchestrator(config)
	if err != nil {
		backend.Logger.Error("failed to initialise engine", "error", err)
		os.Exit(1)
	}

	deps := backend.CheckDependencies(context.Background(), config)
	for _, st := range deps.Details {
		if !st.Available {
			backend.Logger.Warn("dependency unavailable", "name", st.Name, "detail", st.Detail)
		}
	}

	server := api.NewServer(orch)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		backend.Logger.Info("shutting down")
		orch.StopActiveJob()
		if err := server.Shutdown(); err != nil {
			backend.Logger.Warn("server shutdown", "error", err)
		}
	}()

	// Get port from env or default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	backend.Logger.Info("server listening", "port", port)
	if err := server.Listen(":" + port); err != nil {
		backend.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
	if err := orch.Close(); err != nil {
		backend.Logger.Warn("close engine", "error", err)
	}
}
