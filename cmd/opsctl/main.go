package main

import (
	"context"
	"os"

	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/opsctl"
)

var version = "dev"

func main() {
	lg := logger.New(os.Stderr, false)

	root := opsctl.New(config.LoadConfig, version)
	if err := root.ExecuteContext(context.Background()); err != nil {
		lg.Error("command failed", "err", err)
		os.Exit(1)
	}
}
