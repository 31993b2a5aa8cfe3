package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"CorrPull/internal/di"
	"CorrPull/internal/usecase"
	"CorrPull/pkg/config"
	applogger "CorrPull/pkg/logger"
	"CorrPull/pkg/server"
)

// Exit codes: 2 for bad configuration or an invalid job, 1 for any other failure.
const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeRun, "run (one job, then exit) or serve (HTTP API and job intake)")
	flag.Parse()

	boot := applogger.NewConsole()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", applogger.String("path", *configPath), applogger.Error(err))
		return exitUsage
	}
	boot.Info("starting",
		applogger.String("env", cfg.Environment),
		applogger.String("mode", *mode),
		applogger.String("results", cfg.Results.Backend),
	)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", applogger.Error(err))
		return exitFailure
	}
	defer cleanup()

	if err := app.Start(*mode); err != nil {
		boot.Error("app stopped with error", applogger.Error(err))
		if errors.Is(err, usecase.ErrInvalidJob) || errors.Is(err, server.ErrUnknownMode) {
			return exitUsage
		}
		return exitFailure
	}
	return 0
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [-mode run|serve]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
