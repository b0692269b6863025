package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatthiasLenz/TechniteLogic/internal/client"
	"github.com/MatthiasLenz/TechniteLogic/internal/config"
	"github.com/MatthiasLenz/TechniteLogic/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to technite.toml (defaults and TECHNITE_* env when empty)")
	flag.Parse()

	logging.ConfigureRuntime("technitectl")
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "technitectl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	svc, err := client.NewService(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
