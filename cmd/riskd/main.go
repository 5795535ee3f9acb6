// Package main is the entry point for riskd, the real-time trading risk
// enforcement daemon. It parses CLI flags, loads configuration, wires every
// component via internal/orchestrator, and runs until asked to stop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskd/sentinel-risk-daemon/internal/config"
	"github.com/riskd/sentinel-risk-daemon/internal/orchestrator"
)

// Exit codes (§6): 0 normal, 1 startup failure, 2 auth failure, 3
// persistence corruption.
const (
	exitOK             = 0
	exitStartupFailure = 1
	exitAuthFailure    = 2
	exitDataIntegrity  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := config.ParseArgs(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "riskd: parsing flags:", err)
		return exitStartupFailure
	}

	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "riskd: loading configuration:", err)
		return exitStartupFailure
	}

	app, err := orchestrator.New(cfg)
	if err != nil {
		return exitCodeFor(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return exitCodeFor(err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)

	return exitOK
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrDataIntegrity):
		fmt.Fprintln(os.Stderr, "riskd:", err)
		return exitDataIntegrity
	case errors.Is(err, orchestrator.ErrAuthFailure):
		fmt.Fprintln(os.Stderr, "riskd:", err)
		return exitAuthFailure
	default:
		fmt.Fprintln(os.Stderr, "riskd:", err)
		return exitStartupFailure
	}
}
