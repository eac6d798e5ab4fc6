package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hybridmount/hybridmount/internal/configuration"
	"github.com/hybridmount/hybridmount/internal/hymofs"
	"github.com/hybridmount/hybridmount/internal/schema"
	"github.com/hybridmount/hybridmount/internal/umount"
	"github.com/lmittmann/tint"
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string

	configFile  = flag.String("config", configuration.DefaultConfigFile, "path to the configuration file")
	storageRoot = flag.String("storageroot", "", "override the configured module storage root")
	modules     = flag.String("modules", "", "comma-separated module ids to apply")
	statusOnly  = flag.Bool("status", false, "print the HymoFS status as JSON and exit")
	skipLoad    = flag.Bool("noload", false, "do not attempt loading the HymoFS LKM")
)

func setupLogging() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}),
	))
}

func setupSignalHandlers(umountManager *umount.Manager) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		slog.Warn("Received shutdown signal, committing unmount batch")
		umountManager.Commit()
		os.Exit(1)
	}()
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	flag.Parse()
	setupLogging()

	sysProvider := &schema.Sys{}
	osProvider := &schema.OS{}
	unixProvider := &schema.Unix{}

	configHandler := configuration.NewHandler(&configuration.GodotenvProvider{})

	config := configHandler.Establish(*configFile)
	if *storageRoot != "" {
		config.StorageRoot = *storageRoot
	}

	fdHandler := hymofs.NewFdHandler(sysProvider)
	ruleClient := hymofs.NewClient(sysProvider)

	umountManager := umount.NewManager(config.Umount, unixProvider)
	setupSignalHandlers(umountManager)
	defer umountManager.Commit()

	engineHandler := hymofs.NewEngine(fdHandler, ruleClient, osProvider, umountManager)
	introHandler := hymofs.NewIntrospector(fdHandler, ruleClient, config.SyscallNr)
	loaderHandler := hymofs.NewLoader(osProvider, unixProvider, config.SyscallNr)

	app := NewApp(config, loaderHandler, engineHandler, introHandler)

	if *statusOnly {
		if err := app.Status(os.Stdout); err != nil {
			slog.Error("Failed to report HymoFS status.", "err", err)
			ExitCode = 1
		}

		return
	}

	if !*skipLoad {
		if err := app.Load(); err != nil {
			slog.Error("Failed to load the HymoFS LKM.", "err", err)
		}
	}

	moduleIDs := parseModuleIDs(*modules)
	if len(moduleIDs) == 0 {
		slog.Info("No modules requested, nothing to apply.")

		return
	}

	if err := app.Apply(moduleIDs); err != nil {
		slog.Error("Failed to apply HymoFS rules.", "err", err)
		ExitCode = 1
	}
}

func parseModuleIDs(list string) []string {
	ids := []string{}

	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}
