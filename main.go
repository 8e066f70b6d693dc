package main

import (
	"os"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"podfetch/backend"
	"podfetch/internal/api"
)

const appVersion = api.AppVersion

func main() {
	config, err := backend.LoadConfig()
	if err != nil {
		backend.InitLogger("")
		backend.Logger.Warn("could not load config, using defaults", "error", err)
		config = backend.GetDefaultConfig()
	} else {
		backend.InitLogger(config.LogLevel)
	}
	if err := config.EnsureDownloadFolders(); err != nil {
		backend.Logger.Warn("could not create output folders", "error", err)
	}

	orch, err := backend.NewOrchestrator(config)
	if err != nil {
		backend.Logger.Error("failed to initialise engine", "error", err)
		os.Exit(1)
	}
	defer orch.Close()

	// The desktop shell serves the same HTTP API the headless server does
	server := api.NewServer(orch)
	defer server.Shutdown()

	app := NewApp(orch)

	err = wails.Run(&options.App{
		Title:  "podfetch",
		Width:  1024,
		Height: 720,
		AssetServer: &assetserver.Options{
			Handler: adaptor.FiberApp(server.App()),
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		backend.Logger.Error("wails", "error", err)
	}
}
