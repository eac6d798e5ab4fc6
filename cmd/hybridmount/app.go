package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/hybridmount/hybridmount/internal/configuration"
	"github.com/hybridmount/hybridmount/internal/hymofs"
)

type App struct {
	config        *configuration.Config
	loaderHandler *hymofs.Loader
	engineHandler *hymofs.Engine
	introHandler  *hymofs.Introspector
}

func NewApp(config *configuration.Config,
	loaderHandler *hymofs.Loader,
	engineHandler *hymofs.Engine,
	introHandler *hymofs.Introspector,
) *App {
	return &App{
		config:        config,
		loaderHandler: loaderHandler,
		engineHandler: engineHandler,
		introHandler:  introHandler,
	}
}

func (app *App) Load() error {
	if err := app.loaderHandler.Load(); err != nil {
		return fmt.Errorf("(app) %w", err)
	}

	return nil
}

func (app *App) Status(w io.Writer) error {
	status := app.introHandler.Status()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(status); err != nil {
		return fmt.Errorf("(app) %w", err)
	}

	return nil
}

func (app *App) Apply(moduleIDs []string) error {
	result, err := app.engineHandler.Apply(moduleIDs, app.config, app.config.StorageRoot)
	if err != nil {
		return fmt.Errorf("(app) %w", err)
	}

	for id, outcome := range result {
		slog.Info("Module rule application outcome.",
			"module", id,
			"outcome", outcome.String(),
		)
	}

	slog.Info("Rule application session finished.", "applied", result.Applied())

	return nil
}
